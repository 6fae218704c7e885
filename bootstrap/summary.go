package bootstrap

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kbukum/audioscribe/component"
)

// ComponentInfo is one component line in the startup summary.
type ComponentInfo struct {
	Name    string
	Type    string
	Details string
	Port    int
}

// Summary records what was brought up and prints it once startup completes.
type Summary struct {
	serviceName     string
	version         string
	startupDuration time.Duration
	components      []ComponentInfo
	routes          []component.Route
}

// NewSummary creates an empty summary.
func NewSummary(serviceName, version string) *Summary {
	return &Summary{
		serviceName: serviceName,
		version:     version,
	}
}

// SetStartupDuration records the total startup time.
func (s *Summary) SetStartupDuration(d time.Duration) {
	s.startupDuration = d
}

// TrackComponent adds a component line by hand.
func (s *Summary) TrackComponent(info ComponentInfo) {
	s.components = append(s.components, info)
}

// TrackRoute adds a route by hand.
func (s *Summary) TrackRoute(method, path, handler string) {
	s.routes = append(s.routes, component.Route{Method: method, Path: path, Handler: handler})
}

// CollectFromRegistry appends every Describable component and every route
// reported by a RouteProvider. Collected entries replace earlier collected
// ones so repeated calls do not duplicate lines.
func (s *Summary) CollectFromRegistry(registry *component.Registry) {
	if registry == nil {
		return
	}
	var comps []ComponentInfo
	var routes []component.Route
	for _, c := range registry.All() {
		if d, ok := c.(component.Describable); ok {
			desc := d.Describe()
			name := desc.Name
			if name == "" {
				name = c.Name()
			}
			comps = append(comps, ComponentInfo{Name: name, Type: desc.Type, Details: desc.Details, Port: desc.Port})
		}
		if rp, ok := c.(component.RouteProvider); ok {
			routes = append(routes, rp.Routes()...)
		}
	}
	s.components = comps
	s.routes = routes
}

// Display writes the summary to w, including live health from registry when non-nil.
func (s *Summary) Display(w io.Writer, registry *component.Registry) {
	fmt.Fprintf(w, "\n%s v%s started in %.2fs\n\n", s.serviceName, s.version, s.startupDuration.Seconds())

	var health []component.Health
	if registry != nil {
		health = registry.HealthAll(context.Background())
	}
	status := make(map[string]component.HealthStatus, len(health))
	for _, h := range health {
		status[h.Name] = h.Status
	}

	if len(s.components) == 0 {
		fmt.Fprintf(w, "Components\n   └── none registered\n")
	} else {
		fmt.Fprintf(w, "Components\n")
		for i, c := range s.components {
			details := c.Details
			if c.Port > 0 {
				details = fmt.Sprintf("%s (:%d)", details, c.Port)
			}
			fmt.Fprintf(w, "   %s %s %s [%s] %s\n", treePrefix(i, len(s.components)), healthStatusIcon(status[c.Name]), c.Name, c.Type, details)
		}
	}

	if len(s.routes) > 0 {
		fmt.Fprintf(w, "\nRoutes (%d)\n", len(s.routes))
		for i, r := range s.routes {
			fmt.Fprintf(w, "   %s %-7s %s → %s\n", treePrefix(i, len(s.routes)), r.Method, r.Path, r.Handler)
		}
	}

	if len(health) > 0 {
		healthy := 0
		fmt.Fprintf(w, "\nHealth\n")
		for i, h := range health {
			msg := ""
			if h.Message != "" {
				msg = ": " + h.Message
			}
			if h.Status == component.StatusHealthy {
				healthy++
			}
			fmt.Fprintf(w, "   %s %s %s %s%s\n", treePrefix(i, len(health)), healthStatusIcon(h.Status), h.Name, strings.ToLower(string(h.Status)), msg)
		}
		if healthy == len(health) {
			fmt.Fprintf(w, "\n✅ All components healthy (%d/%d)\n", healthy, len(health))
		} else {
			fmt.Fprintf(w, "\n⚠️  Some components have issues (%d/%d healthy)\n", healthy, len(health))
		}
	}

	fmt.Fprintln(w)
}

func treePrefix(i, n int) string {
	if i == n-1 {
		return "└──"
	}
	return "├──"
}

func healthStatusIcon(status component.HealthStatus) string {
	switch status {
	case component.StatusHealthy:
		return "✅"
	case component.StatusDegraded:
		return "⚠️"
	case component.StatusUnhealthy:
		return "❌"
	default:
		return "❓"
	}
}
