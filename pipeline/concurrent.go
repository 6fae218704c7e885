package pipeline

import (
	"context"
)

// result is one value or error handed from a worker to the consumer.
type result[T any] struct {
	val T
	ok  bool
	err error
}

// Ordered applies fn to up to n values concurrently and yields the results in
// input order. Each result is yielded as soon as it and every earlier result
// are ready, so a slow value delays later ones but a fast later value never
// overtakes an earlier one. An error from fn or the source ends the pipeline
// after all earlier results have been yielded. Closing the iterator cancels
// the context passed to in-flight calls.
func Ordered[I, O any](p *Pipeline[I], n int, fn func(context.Context, I) (O, error)) *Pipeline[O] {
	if n <= 0 {
		n = 1
	}
	return &Pipeline[O]{
		create: func(ctx context.Context) Iterator[O] {
			source := p.create(ctx)
			workerCtx, cancel := context.WithCancel(ctx)
			slots := make(chan chan result[O], n)
			sem := make(chan struct{}, n)

			go func() {
				defer close(slots)
				for {
					val, ok, err := source.Next(workerCtx)
					if err != nil {
						slot := make(chan result[O], 1)
						slot <- result[O]{err: err}
						select {
						case slots <- slot:
						case <-workerCtx.Done():
						}
						return
					}
					if !ok {
						return
					}

					select {
					case sem <- struct{}{}:
					case <-workerCtx.Done():
						return
					}
					slot := make(chan result[O], 1)
					select {
					case slots <- slot:
					case <-workerCtx.Done():
						<-sem
						return
					}
					go func(v I) {
						defer func() { <-sem }()
						o, err := fn(workerCtx, v)
						slot <- result[O]{val: o, ok: err == nil, err: err}
					}(val)
				}
			}()

			return &orderedIter[O]{
				slots: slots,
				closer: func() error {
					cancel()
					return source.Close()
				},
			}
		},
	}
}

type orderedIter[O any] struct {
	slots  <-chan chan result[O]
	closer func() error
	done   bool
}

func (it *orderedIter[O]) Next(ctx context.Context) (O, bool, error) {
	var zero O
	if it.done {
		return zero, false, nil
	}
	var slot chan result[O]
	select {
	case s, open := <-it.slots:
		if !open {
			it.done = true
			return zero, false, nil
		}
		slot = s
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
	select {
	case r := <-slot:
		if r.err != nil {
			it.done = true
			return zero, false, r.err
		}
		return r.val, true, nil
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}

func (it *orderedIter[O]) Close() error {
	return it.closer()
}
