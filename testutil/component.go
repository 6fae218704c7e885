package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/kbukum/audioscribe/component"
	"github.com/kbukum/audioscribe/logger"
)

// Start starts components in order and stops them in reverse when the test
// ends. A component that fails to start fails the test.
func Start(t testing.TB, components ...component.Component) *component.Registry {
	t.Helper()
	reg := component.NewRegistry(logger.Nop())
	for _, c := range components {
		if err := reg.Register(c); err != nil {
			t.Fatalf("register %s: %v", c.Name(), err)
		}
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := reg.StopAll(ctx); err != nil {
			t.Errorf("stop components: %v", err)
		}
	})
	if err := reg.StartAll(context.Background()); err != nil {
		t.Fatalf("start components: %v", err)
	}
	return reg
}

// RequireHealthy fails the test unless every component reports healthy.
func RequireHealthy(t testing.TB, reg *component.Registry) {
	t.Helper()
	for _, h := range reg.HealthAll(context.Background()) {
		if h.Status != component.StatusHealthy {
			t.Fatalf("component %s is %s: %s", h.Name, h.Status, h.Message)
		}
	}
}
