package transcription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kbukum/audioscribe/audio"
	"github.com/kbukum/audioscribe/component"
	"github.com/kbukum/audioscribe/denoise"
	apperrors "github.com/kbukum/audioscribe/errors"
	"github.com/kbukum/audioscribe/logger"
	"github.com/kbukum/audioscribe/provider"
	"github.com/kbukum/audioscribe/resilience"
)

// Recognizer turns one segment into text, using noise as the denoising
// reference. Implementations must be safe for concurrent use.
type Recognizer interface {
	Recognize(ctx context.Context, segment, noise audio.Buffer) (string, error)
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func(ctx context.Context, segment, noise audio.Buffer) (string, error)

// Recognize calls f.
func (f RecognizerFunc) Recognize(ctx context.Context, segment, noise audio.Buffer) (string, error) {
	return f(ctx, segment, noise)
}

// Engine is the process-wide Recognizer. It denoises each segment against
// the job's noise profile, then calls the backend under a resilience
// policy whose bulkhead caps concurrent calls.
type Engine struct {
	backend Backend
	cfg     Config
	reducer *denoise.Reducer
	policy  *resilience.Policy
	log     *logger.Logger

	// perSegment is false for the global strategy, whose reduction has
	// already happened by the time a segment arrives.
	perSegment bool
	denoise    string
}

var (
	_ Recognizer          = (*Engine)(nil)
	_ component.Component = (*Engine)(nil)
)

// NewEngine wraps backend. A nil log falls back to the global logger.
func NewEngine(backend Backend, cfg Config, dn denoise.Config, log *logger.Logger) *Engine {
	cfg.ApplyDefaults()
	dn.ApplyDefaults()
	log = logger.OrDefault(log).WithComponent("recognizer")

	pcfg := cfg.policy()
	pcfg.Retry.OnRetry = func(attempt int, err error, backoff time.Duration) {
		log.Warn("retrying recognition", map[string]interface{}{
			"attempt": attempt, logger.FieldError: err.Error(), "backoff_ms": backoff.Milliseconds(),
		})
	}
	pcfg.CircuitBreaker.OnStateChange = func(name string, from, to resilience.State) {
		log.Warn("recognizer circuit changed", logger.Fields("backend", name, "from", from.String(), "to", to.String()))
	}

	return &Engine{
		backend:    backend,
		cfg:        cfg,
		reducer:    denoise.NewReducer(dn),
		perSegment: dn.PerSegment(),
		denoise:    dn.Strategy,
		policy:     resilience.NewPolicy(backend.Name(), pcfg),
		log:        log,
	}
}

// New builds the configured backend from reg and wraps it in an Engine.
func New(reg *provider.Registry[Backend], cfg Config, dn denoise.Config, log *logger.Logger) (*Engine, error) {
	cfg.ApplyDefaults()
	backend, err := reg.Build(cfg.Backend, cfg.Backends[cfg.Backend])
	if err != nil {
		return nil, fmt.Errorf("recognizer backend: %w", err)
	}
	return NewEngine(backend, cfg, dn, log), nil
}

// Backend returns the wrapped backend.
func (e *Engine) Backend() Backend { return e.backend }

// Recognize denoises segment under the per-segment strategy and
// transcribes it. An empty segment yields
// empty text without calling the backend.
func (e *Engine) Recognize(ctx context.Context, segment, noise audio.Buffer) (string, error) {
	if segment.Len() == 0 {
		return "", nil
	}
	input := segment
	if e.perSegment && noise.Len() > 0 {
		input = audio.NewBuffer(e.reducer.Reduce(segment.Samples(), noise.Samples()), segment.SampleRate())
	}

	resp, err := resilience.Do(ctx, e.policy, func(ctx context.Context) (*Response, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()
		resp, err := e.backend.Transcribe(callCtx, Request{Audio: input, Language: e.cfg.Language})
		if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.Timeout("recognition").WithCause(err)
		}
		return resp, err
	})
	if err != nil {
		return "", classify(e.backend.Name(), err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// classify maps guard rejections to service-unavailable errors.
func classify(name string, err error) error {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen),
		errors.Is(err, resilience.ErrBulkheadFull),
		errors.Is(err, resilience.ErrBulkheadTimeout):
		return apperrors.ServiceUnavailable(name + " recognizer").WithCause(err)
	}
	return err
}

// Name implements component.Component.
func (e *Engine) Name() string { return "recognizer" }

// Start checks that the backend is reachable. An unreachable backend is
// logged but does not prevent startup.
func (e *Engine) Start(ctx context.Context) error {
	if !e.backend.IsAvailable(ctx) {
		e.log.Warn("recognizer backend not reachable at startup", logger.Fields("backend", e.backend.Name()))
		return nil
	}
	e.log.Info("recognizer backend ready", logger.Fields("backend", e.backend.Name()))
	return nil
}

// Stop closes the backend if it holds resources.
func (e *Engine) Stop(ctx context.Context) error {
	if c, ok := e.backend.(provider.Closeable); ok {
		return c.Close(ctx)
	}
	return nil
}

// Health reports backend reachability and the circuit state.
func (e *Engine) Health(ctx context.Context) component.Health {
	h := provider.CheckHealth(ctx, e.backend)
	state := e.policy.Breaker().State()
	status := component.StatusHealthy
	switch {
	case h.Status == provider.StatusUnavailable || state == resilience.StateOpen:
		status = component.StatusUnhealthy
	case h.Status == provider.StatusDegraded || state == resilience.StateHalfOpen:
		status = component.StatusDegraded
	}
	msg := h.Message
	if msg == "" {
		msg = fmt.Sprintf("%s circuit %s, %d/%d calls in flight",
			e.backend.Name(), state, e.policy.Bulkhead().InUse(), e.policy.Bulkhead().MaxConcurrent())
	}
	return component.Health{Name: e.Name(), Status: status, Message: msg}
}

// Describe implements component.Describable.
func (e *Engine) Describe() component.Description {
	details := fmt.Sprintf("backend=%s max_concurrent=%d", e.backend.Name(), e.cfg.MaxConcurrent)
	if e.denoise != denoise.StrategyNone {
		details += " denoise=" + e.denoise
	}
	return component.Description{Name: "Recognizer", Type: "transcription", Details: details}
}
