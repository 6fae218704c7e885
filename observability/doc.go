// Package observability wires OpenTelemetry tracing and metrics for
// transcription jobs.
//
// Providers are installed by the Telemetry component:
//
//	tel := observability.NewTelemetry(cfg, info, log)
//	registry.Register(tel)
//
// Instruments are created against the global providers at construction, so
// they start exporting once Start installs the SDK providers and stay no-ops
// when telemetry is disabled:
//
//	ctx, job := tel.Metrics().StartJob(ctx, "upload", jobID)
//	defer job.End(ctx, outcome, err)
package observability
