package resilience

import "context"

// Config is the full set of guards applied to one dependency.
type Config struct {
	Retry          RetryConfig          `yaml:"retry" mapstructure:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker" mapstructure:"circuit_breaker"`
	Bulkhead       BulkheadConfig       `yaml:"bulkhead" mapstructure:"bulkhead"`
}

// Policy composes retry, circuit breaking and a bulkhead. Each attempt
// takes its own bulkhead slot so backoff sleeps do not hold capacity.
type Policy struct {
	name     string
	retry    RetryConfig
	breaker  *CircuitBreaker
	bulkhead *Bulkhead
}

// NewPolicy builds a policy named after the guarded dependency.
func NewPolicy(name string, cfg Config) *Policy {
	cfg.CircuitBreaker.Name = name
	cfg.Bulkhead.Name = name
	cfg.Retry.applyDefaults()
	return &Policy{
		name:     name,
		retry:    cfg.Retry,
		breaker:  NewCircuitBreaker(cfg.CircuitBreaker),
		bulkhead: NewBulkhead(cfg.Bulkhead),
	}
}

// Name returns the guarded dependency's name.
func (p *Policy) Name() string { return p.name }

// Breaker exposes the circuit breaker for health reporting.
func (p *Policy) Breaker() *CircuitBreaker { return p.breaker }

// Bulkhead exposes the bulkhead for health reporting.
func (p *Policy) Bulkhead() *Bulkhead { return p.bulkhead }

// Do runs fn under p.
func Do[T any](ctx context.Context, p *Policy, fn func(context.Context) (T, error)) (T, error) {
	return Retry(ctx, p.retry, func() (T, error) {
		var result T
		err := p.bulkhead.Execute(ctx, func() error {
			return p.breaker.Execute(func() error {
				var err error
				result, err = fn(ctx)
				return err
			})
		})
		return result, err
	})
}
