// Package workerpool runs blocking work (transcoding, fetching, recognition)
// on a fixed set of worker goroutines fed by one shared queue. Submission is
// safe from any number of sessions; each submission returns a Future the
// caller awaits.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kbukum/audioscribe/component"
	"github.com/kbukum/audioscribe/logger"
)

// ErrPoolClosed is returned for tasks submitted after Stop.
var ErrPoolClosed = errors.New("worker pool is closed")

// Config configures the pool.
type Config struct {
	// Workers is the number of tasks executed concurrently.
	Workers int `yaml:"workers" mapstructure:"workers" validate:"gt=0"`
	// QueueSize is the number of tasks that may wait for a worker.
	QueueSize int `yaml:"queue_size" mapstructure:"queue_size" validate:"gte=0"`
}

// ApplyDefaults sets zero fields to defaults.
func (c *Config) ApplyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
}

type task struct {
	ctx context.Context
	run func(ctx context.Context)
	// skip resolves the task's future without running it.
	skip func(err error)
}

// Pool is a bounded worker pool.
type Pool struct {
	cfg   Config
	log   *logger.Logger
	tasks chan task

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup

	running   atomic.Int64
	completed atomic.Int64
}

var _ component.Component = (*Pool)(nil)

// New creates a pool. Workers start with Start.
func New(cfg Config, log *logger.Logger) *Pool {
	cfg.ApplyDefaults()
	return &Pool{
		cfg:   cfg,
		log:   logger.OrDefault(log).WithComponent("workerpool"),
		tasks: make(chan task, cfg.QueueSize),
	}
}

// Name implements component.Component.
func (p *Pool) Name() string { return "workerpool" }

// Workers returns the configured concurrency.
func (p *Pool) Workers() int { return p.cfg.Workers }

// Start launches the worker goroutines. Calling Start twice is a no-op.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	if p.started {
		return nil
	}
	p.started = true
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.log.Info("Worker pool started", logger.Fields("workers", p.cfg.Workers, "queue_size", p.cfg.QueueSize))
	return nil
}

// Stop stops accepting tasks and waits for queued and running tasks to
// finish, or for ctx to expire.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	started := p.started
	p.mu.Unlock()

	if !started {
		for t := range p.tasks {
			t.skip(ErrPoolClosed)
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.log.Info("Worker pool stopped", logger.Fields("completed", p.completed.Load()))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker pool stop: %w", ctx.Err())
	}
}

// Health implements component.Component.
func (p *Pool) Health(_ context.Context) component.Health {
	p.mu.RLock()
	closed, started := p.closed, p.started
	p.mu.RUnlock()

	h := component.Health{Name: p.Name(), Status: component.StatusHealthy}
	switch {
	case closed:
		h.Status, h.Message = component.StatusUnhealthy, "closed"
	case !started:
		h.Status, h.Message = component.StatusUnhealthy, "not started"
	case len(p.tasks) == cap(p.tasks):
		h.Status, h.Message = component.StatusDegraded, "queue full"
	default:
		h.Message = fmt.Sprintf("running=%d queued=%d", p.running.Load(), len(p.tasks))
	}
	return h
}

// Describe implements component.Describable.
func (p *Pool) Describe() component.Description {
	return component.Description{
		Name:    "Worker Pool",
		Type:    "workerpool",
		Details: fmt.Sprintf("workers=%d queue=%d", p.cfg.Workers, p.cfg.QueueSize),
	}
}

// Stats reports the number of running tasks and the queue length.
func (p *Pool) Stats() (running, queued int) {
	return int(p.running.Load()), len(p.tasks)
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for t := range p.tasks {
		if err := t.ctx.Err(); err != nil {
			t.skip(err)
			continue
		}
		p.running.Add(1)
		t.run(t.ctx)
		p.running.Add(-1)
		p.completed.Add(1)
	}
	p.log.Debug("Worker exiting", logger.Fields("worker", id))
}

// enqueue places t on the queue, blocking while the queue is full.
func (p *Pool) enqueue(ctx context.Context, t task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit schedules fn on the pool. fn receives ctx and should return promptly
// once it is cancelled. A task whose ctx is cancelled before a worker picks it
// up is never run. Panics in fn are recovered and reported as errors.
func Submit[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) *Future[T] {
	f := newFuture[T]()
	t := task{
		ctx: ctx,
		run: func(ctx context.Context) {
			defer func() {
				if r := recover(); r != nil {
					var zero T
					f.resolve(zero, fmt.Errorf("worker pool task panicked: %v", r))
				}
			}()
			v, err := fn(ctx)
			f.resolve(v, err)
		},
		skip: func(err error) {
			var zero T
			f.resolve(zero, err)
		},
	}
	if err := p.enqueue(ctx, t); err != nil {
		t.skip(err)
	}
	return f
}

// Go is Submit for tasks without a result.
func Go(ctx context.Context, p *Pool, fn func(context.Context) error) *Future[struct{}] {
	return Submit(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
}
