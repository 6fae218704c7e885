// Package component defines the lifecycle contract shared by the service's
// long-lived parts (HTTP server, worker pool, recognizer, telemetry) and a
// registry that starts them in order and stops them in reverse.
package component

import "context"

// HealthStatus is a component health state.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusDegraded  HealthStatus = "degraded"
)

// Health is one component's health report.
type Health struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// Component is a lifecycle-managed part of the service.
type Component interface {
	// Name returns the unique registration name.
	Name() string
	// Start brings the component up. It must not block for the component's lifetime.
	Start(ctx context.Context) error
	// Stop shuts the component down, honouring ctx as the shutdown deadline.
	Stop(ctx context.Context) error
	// Health reports current health.
	Health(ctx context.Context) Health
}

// Description is a component's line in the startup summary.
type Description struct {
	// Name is the display name; Name() is used when empty.
	Name string
	// Type categorizes the component, e.g. "server" or "workerpool".
	Type string
	// Details is a short configuration summary such as "workers=4 queue=64".
	Details string
	// Port is the listening port, 0 if not applicable.
	Port int
}

// Describable is implemented by components that appear in the startup summary.
type Describable interface {
	Describe() Description
}

// Route is one HTTP route in the startup summary.
type Route struct {
	Method  string
	Path    string
	Handler string
}

// RouteProvider is implemented by server components that report their routes.
type RouteProvider interface {
	Routes() []Route
}

// Overall folds component reports into one status: unhealthy if any is
// unhealthy, degraded if any is degraded, healthy otherwise.
func Overall(reports []Health) HealthStatus {
	status := StatusHealthy
	for _, h := range reports {
		switch h.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}
