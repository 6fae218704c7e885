package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kbukum/audioscribe/component"
	"github.com/kbukum/audioscribe/logger"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func sumFor(t *testing.T, data metricdata.Aggregation, key, value string) int64 {
	t.Helper()
	sum, ok := data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("expected int64 sum, got %T", data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestMetrics_Segments(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSegment(ctx, 100*time.Millisecond, nil)
	m.RecordSegment(ctx, 200*time.Millisecond, nil)
	m.RecordSegment(ctx, 50*time.Millisecond, errors.New("backend down"))
	m.RecordSegment(ctx, 10*time.Millisecond, context.Canceled)

	data := collectMetrics(t, reader)
	segs := data["transcribe.segments"]
	if got := sumFor(t, segs, AttrOutcome, OutcomeComplete); got != 2 {
		t.Errorf("expected 2 complete segments, got %d", got)
	}
	if got := sumFor(t, segs, AttrOutcome, OutcomeFailed); got != 1 {
		t.Errorf("expected 1 failed segment, got %d", got)
	}
	if got := sumFor(t, segs, AttrOutcome, OutcomeCancelled); got != 1 {
		t.Errorf("expected 1 cancelled segment, got %d", got)
	}
	if _, ok := data["transcribe.segment.duration"].(metricdata.Histogram[float64]); !ok {
		t.Errorf("expected a latency histogram, got %T", data["transcribe.segment.duration"])
	}
}

func TestMetrics_JobLifecycle(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	_, job := m.StartJob(ctx, "upload", "job-1")
	data := collectMetrics(t, reader)
	if got := sumFor(t, data["transcribe.jobs.active"], AttrSessionKind, "upload"); got != 1 {
		t.Fatalf("expected 1 active job, got %d", got)
	}

	job.End(ctx, OutcomeComplete, nil)
	job.End(ctx, OutcomeFailed, errors.New("ignored"))

	data = collectMetrics(t, reader)
	if got := sumFor(t, data["transcribe.jobs.active"], AttrSessionKind, "upload"); got != 0 {
		t.Errorf("expected 0 active jobs, got %d", got)
	}
	if got := sumFor(t, data["transcribe.jobs"], AttrOutcome, OutcomeComplete); got != 1 {
		t.Errorf("expected 1 completed job, got %d", got)
	}
	if got := sumFor(t, data["transcribe.jobs"], AttrOutcome, OutcomeFailed); got != 0 {
		t.Errorf("second End must be ignored, got %d failed", got)
	}
}

func TestMetrics_Stage(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.RecordStage(context.Background(), "transcode", time.Second, nil)

	hist, ok := collectMetrics(t, reader)["transcribe.stage.duration"].(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 {
		t.Fatalf("expected one stage data point, got %+v", hist)
	}
	if v, _ := hist.DataPoints[0].Attributes.Value(AttrStage); v.AsString() != "transcode" {
		t.Errorf("expected stage attribute, got %v", v)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordSegment(ctx, time.Second, nil)
	m.RecordStage(ctx, "fetch", time.Second, errors.New("x"))
	_, job := m.StartJob(ctx, "url", "job-2")
	job.End(ctx, OutcomeFailed, errors.New("x"))
}

func TestJobSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var m *Metrics
	ctx, job := m.StartJob(context.Background(), "url", "job-3")
	_, seg := StartSpan(ctx, SpanSegment, attribute.Int(AttrSegment, 0))
	EndSpan(seg, nil)
	job.End(ctx, OutcomeFailed, errors.New("fetch failed"))

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	segSpan, jobSpan := spans[0], spans[1]
	if segSpan.Parent().SpanID() != jobSpan.SpanContext().SpanID() {
		t.Error("segment span must be a child of the job span")
	}
	if jobSpan.Name() != SpanJob {
		t.Errorf("expected %s, got %s", SpanJob, jobSpan.Name())
	}
	if jobSpan.Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", jobSpan.Status())
	}
	var found bool
	for _, kv := range jobSpan.Attributes() {
		if kv.Key == AttrJobID && kv.Value.AsString() == "job-3" {
			found = true
		}
	}
	if !found {
		t.Error("expected job id attribute")
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1, "ParentBased{root:AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{0.5, "ParentBased{root:TraceIDRatioBased{0.5}"},
	}
	for _, tt := range tests {
		got := sampler(tt.rate).Description()
		if len(got) < len(tt.want) || got[:len(tt.want)] != tt.want {
			t.Errorf("sampler(%v) = %q, want prefix %q", tt.rate, got, tt.want)
		}
	}
}

func TestTelemetry_Disabled(t *testing.T) {
	tel, err := NewTelemetry(Config{}, ServiceInfo{Name: "audioscribe"}, logger.Nop())
	if err != nil {
		t.Fatalf("NewTelemetry: %v", err)
	}
	ctx := context.Background()
	if err := tel.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h := tel.Health(ctx); h.Status != component.StatusHealthy || h.Message != "disabled" {
		t.Errorf("unexpected health %+v", h)
	}
	if tel.Metrics() == nil {
		t.Error("expected instruments even when disabled")
	}
	if err := tel.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestTelemetry_EnabledLifecycle(t *testing.T) {
	prevTP, prevMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
	})

	tel, err := NewTelemetry(Config{Enabled: true, Endpoint: "127.0.0.1:1", Insecure: true, SampleRate: 1}, ServiceInfo{Name: "audioscribe", Version: "test"}, logger.Nop())
	if err != nil {
		t.Fatalf("NewTelemetry: %v", err)
	}
	ctx := context.Background()
	if h := tel.Health(ctx); h.Status != component.StatusDegraded {
		t.Errorf("expected degraded before start, got %+v", h)
	}
	if err := tel.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h := tel.Health(ctx); h.Status != component.StatusHealthy {
		t.Errorf("expected healthy after start, got %+v", h)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	// Nothing listens on the endpoint; only the shutdown path matters here.
	_ = tel.Stop(stopCtx)
	if tel.tp != nil || tel.mp != nil {
		t.Error("expected providers to be released")
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Endpoint != "localhost:4318" {
		t.Errorf("expected default endpoint, got %q", cfg.Endpoint)
	}
	if cfg.Interval != 15*time.Second {
		t.Errorf("expected 15s interval, got %v", cfg.Interval)
	}
	if cfg.SampleRate != 0 {
		t.Errorf("sample rate must not be defaulted, got %v", cfg.SampleRate)
	}
}
