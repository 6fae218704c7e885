package transcription

import (
	"time"

	"github.com/kbukum/audioscribe/resilience"
)

// Config selects and tunes the recognition backend.
type Config struct {
	// Backend is the registered backend name.
	Backend string `yaml:"backend" mapstructure:"backend" validate:"required"`
	// Language is passed to every call; empty lets the model detect it.
	Language string `yaml:"language" mapstructure:"language"`
	// MaxConcurrent caps in-flight backend calls across all jobs.
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent" validate:"gte=0"`
	// CallTimeout bounds a single backend call.
	CallTimeout time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`
	// Retry and CircuitBreaker guard backend calls.
	Retry          resilience.RetryConfig          `yaml:"retry" mapstructure:"retry"`
	CircuitBreaker resilience.CircuitBreakerConfig `yaml:"circuit_breaker" mapstructure:"circuit_breaker"`
	// Backends holds each backend's own settings keyed by backend name.
	Backends map[string]map[string]any `yaml:"backends" mapstructure:"backends"`
}

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = "whisper"
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 2 * time.Minute
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 2
	}
}

func (c Config) policy() resilience.Config {
	return resilience.Config{
		Retry:          c.Retry,
		CircuitBreaker: c.CircuitBreaker,
		Bulkhead:       resilience.BulkheadConfig{MaxConcurrent: c.MaxConcurrent, MaxWait: -1},
	}
}
