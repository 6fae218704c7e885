package transcription

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kbukum/audioscribe/audio"
	"github.com/kbukum/audioscribe/component"
	"github.com/kbukum/audioscribe/denoise"
	apperrors "github.com/kbukum/audioscribe/errors"
	"github.com/kbukum/audioscribe/logger"
	"github.com/kbukum/audioscribe/resilience"
)

type fakeBackend struct {
	available bool
	delay     time.Duration
	fail      func(call int) error

	mu       sync.Mutex
	calls    int
	lastReq  Request
	inFlight int32
	peak     int32
}

func (b *fakeBackend) Name() string                    { return "fake" }
func (b *fakeBackend) IsAvailable(context.Context) bool { return b.available }

func (b *fakeBackend) Transcribe(ctx context.Context, req Request) (*Response, error) {
	n := atomic.AddInt32(&b.inFlight, 1)
	defer atomic.AddInt32(&b.inFlight, -1)
	for {
		p := atomic.LoadInt32(&b.peak)
		if n <= p || atomic.CompareAndSwapInt32(&b.peak, p, n) {
			break
		}
	}

	b.mu.Lock()
	b.calls++
	call := b.calls
	b.lastReq = req
	b.mu.Unlock()

	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if b.fail != nil {
		if err := b.fail(call); err != nil {
			return nil, err
		}
	}
	return &Response{Text: "  segment text \n"}, nil
}

func tone(n int) audio.Buffer {
	x := make([]float32, n)
	for i := range x {
		x[i] = 0.3
		if (i/8)%2 == 1 {
			x[i] = -0.3
		}
	}
	return audio.NewBuffer(x, audio.DefaultSampleRate)
}

func fastConfig() Config {
	return Config{
		Backend:       "fake",
		MaxConcurrent: 2,
		CallTimeout:   time.Second,
		Retry:         resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
	}
}

func TestEngine_RecognizeTrimsText(t *testing.T) {
	b := &fakeBackend{}
	e := NewEngine(b, fastConfig(), denoise.Config{Strategy: denoise.StrategyNone}, logger.Nop())

	text, err := e.Recognize(context.Background(), tone(1600), audio.Buffer{})
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if text != "segment text" {
		t.Errorf("got %q", text)
	}
}

func TestEngine_EmptySegmentSkipsBackend(t *testing.T) {
	b := &fakeBackend{}
	e := NewEngine(b, fastConfig(), denoise.Config{}, logger.Nop())
	text, err := e.Recognize(context.Background(), audio.NewBuffer(nil, audio.DefaultSampleRate), tone(100))
	if err != nil || text != "" {
		t.Errorf("got %q, %v", text, err)
	}
	if b.calls != 0 {
		t.Errorf("backend called %d times", b.calls)
	}
}

func TestEngine_DenoiseStrategy(t *testing.T) {
	seg := tone(4000)
	noise := tone(2000)

	tests := []struct {
		name      string
		strategy  string
		noise     audio.Buffer
		unchanged bool
	}{
		{"per segment", denoise.StrategyPerSegment, noise, false},
		{"global is applied upstream", denoise.StrategyGlobal, noise, true},
		{"none", denoise.StrategyNone, noise, true},
		{"empty profile", denoise.StrategyPerSegment, audio.Buffer{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBackend{}
			e := NewEngine(b, fastConfig(), denoise.Config{Strategy: tt.strategy}, logger.Nop())
			if _, err := e.Recognize(context.Background(), seg, tt.noise); err != nil {
				t.Fatal(err)
			}
			got := b.lastReq.Audio
			if got.Len() != seg.Len() || got.SampleRate() != seg.SampleRate() {
				t.Fatalf("backend got %d samples at %d Hz", got.Len(), got.SampleRate())
			}
			same := &got.Samples()[0] == &seg.Samples()[0]
			if same != tt.unchanged {
				t.Errorf("segment passed through unchanged = %v, want %v", same, tt.unchanged)
			}
		})
	}
}

func TestEngine_RetriesTransientErrors(t *testing.T) {
	b := &fakeBackend{fail: func(call int) error {
		if call < 3 {
			return apperrors.ServiceUnavailable("fake")
		}
		return nil
	}}
	e := NewEngine(b, fastConfig(), denoise.Config{Strategy: denoise.StrategyNone}, logger.Nop())
	if _, err := e.Recognize(context.Background(), tone(100), audio.Buffer{}); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if b.calls != 3 {
		t.Errorf("expected 3 calls, got %d", b.calls)
	}
}

func TestEngine_PermanentError(t *testing.T) {
	boom := errors.New("bad audio")
	b := &fakeBackend{fail: func(int) error { return apperrors.Internal(boom) }}
	e := NewEngine(b, fastConfig(), denoise.Config{Strategy: denoise.StrategyNone}, logger.Nop())
	_, err := e.Recognize(context.Background(), tone(100), audio.Buffer{})
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped cause, got %v", err)
	}
	if b.calls != 1 {
		t.Errorf("expected 1 call, got %d", b.calls)
	}
}

func TestEngine_OpenCircuitIsUnavailable(t *testing.T) {
	cfg := fastConfig()
	cfg.Retry.MaxAttempts = 1
	cfg.CircuitBreaker = resilience.CircuitBreakerConfig{MaxFailures: 1, Timeout: time.Hour}
	b := &fakeBackend{fail: func(int) error { return errors.New("down") }}
	e := NewEngine(b, cfg, denoise.Config{Strategy: denoise.StrategyNone}, logger.Nop())

	_, _ = e.Recognize(context.Background(), tone(100), audio.Buffer{})
	_, err := e.Recognize(context.Background(), tone(100), audio.Buffer{})
	if !apperrors.IsCode(err, apperrors.ErrCodeServiceUnavailable) {
		t.Errorf("expected service unavailable, got %v", err)
	}
	if h := e.Health(context.Background()); h.Status != component.StatusUnhealthy {
		t.Errorf("expected unhealthy with open circuit, got %s", h.Status)
	}
}

func TestEngine_CallTimeout(t *testing.T) {
	cfg := fastConfig()
	cfg.Retry.MaxAttempts = 1
	cfg.CallTimeout = 10 * time.Millisecond
	b := &fakeBackend{delay: time.Second}
	e := NewEngine(b, cfg, denoise.Config{Strategy: denoise.StrategyNone}, logger.Nop())

	_, err := e.Recognize(context.Background(), tone(100), audio.Buffer{})
	if !apperrors.IsCode(err, apperrors.ErrCodeTimeout) {
		t.Errorf("expected timeout, got %v", err)
	}
}

func TestEngine_BoundsConcurrency(t *testing.T) {
	b := &fakeBackend{delay: 10 * time.Millisecond}
	e := NewEngine(b, fastConfig(), denoise.Config{Strategy: denoise.StrategyNone}, logger.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Recognize(context.Background(), tone(100), audio.Buffer{}); err != nil {
				t.Errorf("Recognize failed: %v", err)
			}
		}()
	}
	wg.Wait()
	if b.peak > 2 {
		t.Errorf("expected at most 2 concurrent backend calls, saw %d", b.peak)
	}
}

func TestEngine_Lifecycle(t *testing.T) {
	e := NewEngine(&fakeBackend{available: true}, fastConfig(), denoise.Config{}, logger.Nop())
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h := e.Health(context.Background()); h.Status != component.StatusHealthy {
		t.Errorf("expected healthy, got %+v", h)
	}
	if d := e.Describe(); d.Type != "transcription" {
		t.Errorf("unexpected description %+v", d)
	}
	if err := e.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}

	down := NewEngine(&fakeBackend{}, fastConfig(), denoise.Config{}, logger.Nop())
	if err := down.Start(context.Background()); err != nil {
		t.Errorf("unreachable backend must not fail startup: %v", err)
	}
	if h := down.Health(context.Background()); h.Status != component.StatusUnhealthy {
		t.Errorf("expected unhealthy, got %s", h.Status)
	}
}

func TestNew_FromRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterFactory("fake", func(cfg map[string]any) (Backend, error) {
		return &fakeBackend{available: cfg["ready"] == true}, nil
	})
	cfg := fastConfig()
	cfg.Backends = map[string]map[string]any{"fake": {"ready": true}}

	e, err := New(reg, cfg, denoise.Config{}, logger.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !e.Backend().IsAvailable(context.Background()) {
		t.Error("backend config not passed to factory")
	}

	cfg.Backend = "missing"
	if _, err := New(reg, cfg, denoise.Config{}, logger.Nop()); err == nil {
		t.Error("expected error for unregistered backend")
	}
}
