// Package openai is a recognition backend for the OpenAI audio
// transcription API, or any server compatible with it.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kbukum/audioscribe/audio"
	apperrors "github.com/kbukum/audioscribe/errors"
	"github.com/kbukum/audioscribe/provider"
	"github.com/kbukum/audioscribe/transcription"
)

// ProviderName is the registered backend name.
const ProviderName = "openai"

// Config configures the API client.
type Config struct {
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
	// BaseURL overrides the API root, e.g. for a self-hosted compatible server.
	BaseURL string        `yaml:"base_url" mapstructure:"base_url"`
	Model   string        `yaml:"model" mapstructure:"model"`
	Prompt  string        `yaml:"prompt" mapstructure:"prompt"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// Provider implements transcription.Backend on go-openai.
type Provider struct {
	cfg    Config
	client *goopenai.Client
}

var _ transcription.Backend = (*Provider)(nil)

// NewProvider creates an API backend.
func NewProvider(cfg Config) *Provider {
	if cfg.Model == "" {
		cfg.Model = goopenai.Whisper1
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Provider{cfg: cfg, client: goopenai.NewClientWithConfig(clientCfg)}
}

// Factory builds providers from a backend configuration section.
func Factory() provider.Factory[transcription.Backend] {
	return func(raw map[string]any) (transcription.Backend, error) {
		var cfg Config
		if err := provider.Decode(raw, &cfg); err != nil {
			return nil, err
		}
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			return nil, errors.New("openai backend requires api_key or base_url")
		}
		return NewProvider(cfg), nil
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return ProviderName }

// IsAvailable lists models as a cheap authenticated probe.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	_, err := p.client.ListModels(ctx)
	return err == nil
}

// Transcribe uploads req.Audio as a WAV file.
func (p *Provider) Transcribe(ctx context.Context, req transcription.Request) (*transcription.Response, error) {
	wav, err := audio.EncodeBytes(req.Audio)
	if err != nil {
		return nil, fmt.Errorf("encode segment: %w", err)
	}
	model := p.cfg.Model
	if req.Model != "" {
		model = req.Model
	}

	resp, err := p.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    model,
		FilePath: "segment.wav",
		Reader:   bytes.NewReader(wav),
		Prompt:   p.cfg.Prompt,
		Language: req.Language,
		Format:   goopenai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, classify(ctx, err)
	}

	segments := make([]transcription.Segment, len(resp.Segments))
	for i, s := range resp.Segments {
		segments[i] = transcription.Segment{Start: s.Start, End: s.End, Text: s.Text}
	}
	return &transcription.Response{
		Text:     resp.Text,
		Segments: segments,
		Duration: resp.Duration,
		Language: resp.Language,
	}, nil
}

// classify marks rate limiting, server errors and transport failures as
// retryable and everything else as permanent.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	status := 0
	var apiErr *goopenai.APIError
	var reqErr *goopenai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		return apperrors.ServiceUnavailable("openai transcription").WithCause(err)
	}
	if status >= 500 || status == http.StatusTooManyRequests {
		return apperrors.ServiceUnavailable("openai transcription").WithCause(err)
	}
	return apperrors.Internal(err)
}
