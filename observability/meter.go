package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

// Job and segment outcomes.
const (
	OutcomeComplete  = "complete"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// InitMeter installs a periodic OTLP HTTP meter provider as the global
// provider. The caller shuts it down on exit.
func InitMeter(ctx context.Context, cfg Config, info ServiceInfo) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(ctx, info)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.Interval))
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)
	return mp, nil
}

// Meter returns the service meter from the global provider.
func Meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// Metrics holds the job and segment instruments. A nil *Metrics records
// nothing, so components can take one unconditionally.
type Metrics struct {
	jobsTotal       metric.Int64Counter
	jobsActive      metric.Int64UpDownCounter
	jobDuration     metric.Float64Histogram
	stageDuration   metric.Float64Histogram
	segmentsTotal   metric.Int64Counter
	segmentDuration metric.Float64Histogram
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	jobsTotal, err := meter.Int64Counter("transcribe.jobs",
		metric.WithDescription("Finished transcription jobs by session kind and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating transcribe.jobs counter: %w", err)
	}
	jobsActive, err := meter.Int64UpDownCounter("transcribe.jobs.active",
		metric.WithDescription("Jobs currently in progress"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating transcribe.jobs.active counter: %w", err)
	}
	jobDuration, err := meter.Float64Histogram("transcribe.job.duration",
		metric.WithDescription("Wall time of a job from ingest to terminal state"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating transcribe.job.duration histogram: %w", err)
	}
	stageDuration, err := meter.Float64Histogram("transcribe.stage.duration",
		metric.WithDescription("Duration of fetch, transcode and segmentation stages"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating transcribe.stage.duration histogram: %w", err)
	}
	segmentsTotal, err := meter.Int64Counter("transcribe.segments",
		metric.WithDescription("Recognized segments by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating transcribe.segments counter: %w", err)
	}
	segmentDuration, err := meter.Float64Histogram("transcribe.segment.duration",
		metric.WithDescription("Recognition latency of one segment"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating transcribe.segment.duration histogram: %w", err)
	}

	return &Metrics{
		jobsTotal:       jobsTotal,
		jobsActive:      jobsActive,
		jobDuration:     jobDuration,
		stageDuration:   stageDuration,
		segmentsTotal:   segmentsTotal,
		segmentDuration: segmentDuration,
	}, nil
}

// RecordStage records how long a job stage took.
func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.stageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String(AttrStage, stage),
		attribute.String(AttrOutcome, outcomeOf(err)),
	))
}

// RecordSegment records one recognition call.
func (m *Metrics) RecordSegment(ctx context.Context, d time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrOutcome, outcomeOf(err)))
	m.segmentsTotal.Add(ctx, 1, attrs)
	m.segmentDuration.Record(ctx, d.Seconds(), attrs)
}

// StartJob opens the job span and marks the job active. The returned
// context carries the span for stage and segment spans.
func (m *Metrics) StartJob(ctx context.Context, kind, jobID string) (context.Context, *Job) {
	ctx, span := StartSpan(ctx, SpanJob,
		attribute.String(AttrJobID, jobID),
		attribute.String(AttrSessionKind, kind),
	)
	if m != nil {
		m.jobsActive.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrSessionKind, kind)))
	}
	return ctx, &Job{metrics: m, span: span, kind: kind, start: time.Now()}
}

// Job tracks one job's span and metrics until End.
type Job struct {
	metrics *Metrics
	span    trace.Span
	kind    string
	start   time.Time
	ended   bool
}

// End closes the job with its outcome. Calling End again is a no-op.
func (j *Job) End(ctx context.Context, outcome string, err error) {
	if j.ended {
		return
	}
	j.ended = true
	d := time.Since(j.start)
	j.span.SetAttributes(
		attribute.String(AttrOutcome, outcome),
		attribute.Int64(AttrDurationMs, d.Milliseconds()),
	)
	EndSpan(j.span, err)

	if m := j.metrics; m != nil {
		kind := attribute.String(AttrSessionKind, j.kind)
		m.jobsActive.Add(ctx, -1, metric.WithAttributes(kind))
		m.jobsTotal.Add(ctx, 1, metric.WithAttributes(kind, attribute.String(AttrOutcome, outcome)))
		m.jobDuration.Record(ctx, d.Seconds(), metric.WithAttributes(kind, attribute.String(AttrOutcome, outcome)))
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeComplete
	case errors.Is(err, context.Canceled):
		return OutcomeCancelled
	default:
		return OutcomeFailed
	}
}
