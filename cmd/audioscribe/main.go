// Command audioscribe serves streaming speech-to-text over WebSocket and a
// single-shot HTTP endpoint.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kbukum/audioscribe/bootstrap"
	"github.com/kbukum/audioscribe/component"
	"github.com/kbukum/audioscribe/config"
	"github.com/kbukum/audioscribe/media"
	"github.com/kbukum/audioscribe/observability"
	"github.com/kbukum/audioscribe/server"
	"github.com/kbukum/audioscribe/session"
	"github.com/kbukum/audioscribe/tempres"
	"github.com/kbukum/audioscribe/transcribe"
	"github.com/kbukum/audioscribe/transcription"
	"github.com/kbukum/audioscribe/transcription/openai"
	"github.com/kbukum/audioscribe/transcription/whisper"
	"github.com/kbukum/audioscribe/version"
	"github.com/kbukum/audioscribe/workerpool"
)

const serviceName = version.Product

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg Config
	if err := config.LoadConfig(serviceName, &cfg); err != nil {
		return err
	}
	if cfg.Version == "" {
		cfg.Version = version.Get().Short()
	}

	app, err := bootstrap.NewApp(&cfg)
	if err != nil {
		return err
	}
	if err := wire(app); err != nil {
		return err
	}
	return app.Run(ctx)
}

// wire builds the service graph and registers its components in start order.
func wire(app *bootstrap.App[*Config]) error {
	cfg, log := app.Cfg, app.Logger

	telemetry, err := observability.NewTelemetry(cfg.Telemetry, observability.ServiceInfo{
		Name:        cfg.Name,
		Version:     cfg.Version,
		Environment: cfg.Environment,
	}, log)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	metrics := telemetry.Metrics()

	temp, err := tempres.NewManager(cfg.Media.TempDir)
	if err != nil {
		return err
	}

	backends := transcription.NewRegistry()
	backends.RegisterFactory(whisper.ProviderName, whisper.Factory())
	backends.RegisterFactory(openai.ProviderName, openai.Factory())
	recognizer, err := transcription.New(backends, cfg.Recognizer, cfg.Denoise, log)
	if err != nil {
		return err
	}

	pool := workerpool.New(cfg.Pool, log)
	cfg.Pipeline.Denoise = cfg.Denoise
	ffmpeg := media.NewFFmpeg(cfg.Media, log)

	orchestrator := session.NewOrchestrator(cfg.Session, session.Deps{
		Temp:       temp,
		Transcoder: ffmpeg,
		Fetcher:    media.NewYtDlp(cfg.Media, ffmpeg, log),
		Pipeline:   transcribe.New(cfg.Pipeline, recognizer, pool, metrics, log),
		Pool:       pool,
		Metrics:    metrics,
	}, log)

	srv := server.New(cfg.Server, log)
	srv.ApplyDefaults(cfg.Name, app.Components.HealthAll, pool.Stats)
	routes := server.NewTranscribeRoutes(orchestrator, cfg.Server, log)
	routes.Register(srv.GinEngine())
	srv.OnStop(routes.Close)

	for _, c := range []component.Component{
		telemetry,
		media.NewToolchain(cfg.Media, log),
		pool,
		recognizer,
		server.NewComponent(srv),
	} {
		if err := app.RegisterComponent(c); err != nil {
			return err
		}
	}
	return nil
}
