package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a call exceeds the configured rate.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimiterConfig configures a token bucket.
type RateLimiterConfig struct {
	Name string `yaml:"-" mapstructure:"-"`
	// Rate is the refill rate in tokens per second.
	Rate float64 `yaml:"rate" mapstructure:"rate" validate:"gte=0"`
	// Burst is the bucket capacity.
	Burst int `yaml:"burst" mapstructure:"burst" validate:"gte=0"`
	// OnLimit is called when a call is rejected.
	OnLimit func(name string) `yaml:"-" mapstructure:"-"`
}

// RateLimiter is a token bucket.
type RateLimiter struct {
	config RateLimiterConfig

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter creates a full bucket. Rate defaults to 10/s and Burst to Rate.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Rate <= 0 {
		config.Rate = 10
	}
	if config.Burst <= 0 {
		config.Burst = max(1, int(config.Rate))
	}
	return &RateLimiter{
		config:     config,
		tokens:     float64(config.Burst),
		lastRefill: time.Now(),
	}
}

// Allow takes one token if available.
func (rl *RateLimiter) Allow() bool { return rl.AllowN(1) }

// AllowN takes n tokens if available.
func (rl *RateLimiter) AllowN(n int) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill(time.Now())
	if rl.tokens >= float64(n) {
		rl.tokens -= float64(n)
		return true
	}
	if rl.config.OnLimit != nil {
		rl.config.OnLimit(rl.config.Name)
	}
	return false
}

// Wait blocks until a token is available or ctx ends.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	wait := rl.reserve(1)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Execute runs fn if a token is available, else returns ErrRateLimited.
func (rl *RateLimiter) Execute(fn func() error) error {
	if !rl.Allow() {
		return ErrRateLimited
	}
	return fn()
}

// Tokens returns the tokens currently in the bucket.
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill(time.Now())
	return rl.tokens
}

func (rl *RateLimiter) idleSince() time.Time {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.lastRefill
}

func (rl *RateLimiter) refill(now time.Time) {
	rl.tokens += now.Sub(rl.lastRefill).Seconds() * rl.config.Rate
	rl.lastRefill = now
	if rl.tokens > float64(rl.config.Burst) {
		rl.tokens = float64(rl.config.Burst)
	}
}

// reserve takes n tokens, going into debt if needed, and returns the wait
// until that debt is repaid.
func (rl *RateLimiter) reserve(n int) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill(time.Now())
	rl.tokens -= float64(n)
	if rl.tokens >= 0 {
		return 0
	}
	return time.Duration(-rl.tokens / rl.config.Rate * float64(time.Second))
}

// KeyedRateLimiter keeps one bucket per key, for example per client IP.
// Buckets idle for longer than the eviction window are dropped.
type KeyedRateLimiter struct {
	config  RateLimiterConfig
	idleTTL time.Duration

	mu        sync.Mutex
	buckets   map[string]*RateLimiter
	lastSweep time.Time
}

// NewKeyedRateLimiter creates a per-key limiter. idleTTL defaults to 10 minutes.
func NewKeyedRateLimiter(config RateLimiterConfig, idleTTL time.Duration) *KeyedRateLimiter {
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &KeyedRateLimiter{
		config:    config,
		idleTTL:   idleTTL,
		buckets:   make(map[string]*RateLimiter),
		lastSweep: time.Now(),
	}
}

// Allow takes a token from key's bucket.
func (k *KeyedRateLimiter) Allow(key string) bool {
	return k.bucket(key).Allow()
}

// Len returns the number of live buckets.
func (k *KeyedRateLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}

func (k *KeyedRateLimiter) bucket(key string) *RateLimiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := time.Now()
	if now.Sub(k.lastSweep) >= k.idleTTL {
		for key, b := range k.buckets {
			if now.Sub(b.idleSince()) >= k.idleTTL {
				delete(k.buckets, key)
			}
		}
		k.lastSweep = now
	}

	b, ok := k.buckets[key]
	if !ok {
		cfg := k.config
		cfg.Name = key
		b = NewRateLimiter(cfg)
		k.buckets[key] = b
	}
	return b
}
