// Package provider is a small generic framework for swappable backends:
// named factories, a registry that builds and caches instances, and
// optional lifecycle and health hooks.
package provider

import "context"

// Provider is the interface every backend implements.
type Provider interface {
	// Name returns the provider's registered name.
	Name() string
	// IsAvailable reports whether the provider can serve requests now.
	IsAvailable(ctx context.Context) bool
}

// Closeable is implemented by providers that hold resources.
type Closeable interface {
	Close(ctx context.Context) error
}

// Factory creates a provider from its configuration section.
type Factory[T Provider] func(cfg map[string]any) (T, error)
