package observability

import (
	"context"
	"errors"
	"fmt"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/kbukum/audioscribe/component"
	"github.com/kbukum/audioscribe/logger"
)

// Telemetry is the component that owns the OTLP providers.
type Telemetry struct {
	cfg     Config
	info    ServiceInfo
	log     *logger.Logger
	metrics *Metrics

	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

var (
	_ component.Component   = (*Telemetry)(nil)
	_ component.Describable = (*Telemetry)(nil)
)

// NewTelemetry creates the component and the service instruments.
func NewTelemetry(cfg Config, info ServiceInfo, log *logger.Logger) (*Telemetry, error) {
	cfg.ApplyDefaults()
	metrics, err := NewMetrics(Meter())
	if err != nil {
		return nil, err
	}
	return &Telemetry{
		cfg:     cfg,
		info:    info,
		log:     logger.OrDefault(log).WithComponent("telemetry"),
		metrics: metrics,
	}, nil
}

// Metrics returns the service instruments.
func (t *Telemetry) Metrics() *Metrics { return t.metrics }

// Name implements component.Component.
func (t *Telemetry) Name() string { return "telemetry" }

// Start installs the OTLP providers when telemetry is enabled.
func (t *Telemetry) Start(ctx context.Context) error {
	if !t.cfg.Enabled {
		t.log.Debug("telemetry disabled")
		return nil
	}
	tp, err := InitTracer(ctx, t.cfg, t.info)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	mp, err := InitMeter(ctx, t.cfg, t.info)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return fmt.Errorf("telemetry: %w", err)
	}
	t.tp, t.mp = tp, mp
	t.log.Info("telemetry initialized", logger.Fields(
		"endpoint", t.cfg.Endpoint,
		"sample_rate", t.cfg.SampleRate,
		"interval", t.cfg.Interval.String(),
	))
	return nil
}

// Stop flushes and shuts down the providers.
func (t *Telemetry) Stop(ctx context.Context) error {
	var errs []error
	if t.tp != nil {
		errs = append(errs, t.tp.Shutdown(ctx))
		t.tp = nil
	}
	if t.mp != nil {
		errs = append(errs, t.mp.Shutdown(ctx))
		t.mp = nil
	}
	return errors.Join(errs...)
}

// Health implements component.Component.
func (t *Telemetry) Health(_ context.Context) component.Health {
	h := component.Health{Name: t.Name(), Status: component.StatusHealthy, Message: "disabled"}
	if t.cfg.Enabled {
		h.Message = "exporting to " + t.cfg.Endpoint
		if t.tp == nil {
			h.Status, h.Message = component.StatusDegraded, "not started"
		}
	}
	return h
}

// Describe implements component.Describable.
func (t *Telemetry) Describe() component.Description {
	details := "disabled"
	if t.cfg.Enabled {
		details = fmt.Sprintf("otlp=%s sample=%.2f", t.cfg.Endpoint, t.cfg.SampleRate)
	}
	return component.Description{Name: "Telemetry", Type: "telemetry", Details: details}
}
