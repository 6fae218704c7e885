// Package transcription turns normalized audio segments into text. A
// Backend talks to one speech model; the Engine wraps a backend with noise
// reduction, a process-wide concurrency limit, retries and a circuit breaker.
package transcription

import (
	"context"

	"github.com/kbukum/audioscribe/provider"
)

// Backend is a speech-to-text model reachable by the service. Backends are
// created once at startup and shared by every job.
type Backend interface {
	provider.Provider

	// Transcribe recognizes the speech in req.Audio.
	Transcribe(ctx context.Context, req Request) (*Response, error)
}

// NewRegistry creates a registry of backend factories.
func NewRegistry() *provider.Registry[Backend] {
	return provider.NewRegistry[Backend]()
}
