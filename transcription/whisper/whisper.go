// Package whisper is a recognition backend for a faster-whisper HTTP
// sidecar. Each segment is uploaded as a 16-bit WAV to POST /transcribe.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/kbukum/audioscribe/audio"
	apperrors "github.com/kbukum/audioscribe/errors"
	"github.com/kbukum/audioscribe/provider"
	"github.com/kbukum/audioscribe/security"
	"github.com/kbukum/audioscribe/transcription"
	"github.com/kbukum/audioscribe/version"
)

const (
	// ProviderName is the registered backend name.
	ProviderName = "whisper"

	defaultURL     = "http://localhost:8387"
	defaultModel   = "base"
	defaultTimeout = 120 * time.Second
)

// Config configures the sidecar client.
type Config struct {
	URL         string        `yaml:"url" mapstructure:"url"`
	Model       string        `yaml:"model" mapstructure:"model"`
	Language    string        `yaml:"language" mapstructure:"language"`
	Device      string        `yaml:"device" mapstructure:"device"`
	ComputeType string        `yaml:"compute_type" mapstructure:"compute_type"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// TLS configures HTTPS to the sidecar.
	TLS security.TLSConfig `yaml:"tls" mapstructure:"tls"`
}

// Provider implements transcription.Backend against the sidecar.
type Provider struct {
	cfg    Config
	client *http.Client
}

var _ transcription.Backend = (*Provider)(nil)

// NewProvider creates a sidecar backend.
func NewProvider(cfg Config) *Provider {
	if cfg.URL == "" {
		cfg.URL = defaultURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Provider{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// Factory builds providers from a backend configuration section.
func Factory() provider.Factory[transcription.Backend] {
	return func(raw map[string]any) (transcription.Backend, error) {
		var cfg Config
		if err := provider.Decode(raw, &cfg); err != nil {
			return nil, err
		}
		tlsCfg, err := cfg.TLS.BuildClient()
		if err != nil {
			return nil, fmt.Errorf("whisper: %w", err)
		}
		p := NewProvider(cfg)
		if tlsCfg != nil {
			transport := http.DefaultTransport.(*http.Transport).Clone()
			transport.TLSClientConfig = tlsCfg
			p.client.Transport = transport
		}
		return p, nil
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return ProviderName }

// IsAvailable probes GET /health.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL+"/health", nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Transcribe uploads req.Audio and returns the sidecar's transcript.
// Transport errors and 5xx responses are retryable; 4xx responses are not.
func (p *Provider) Transcribe(ctx context.Context, req transcription.Request) (*transcription.Response, error) {
	wav, err := audio.EncodeBytes(req.Audio)
	if err != nil {
		return nil, fmt.Errorf("encode segment: %w", err)
	}

	model := p.cfg.Model
	if req.Model != "" {
		model = req.Model
	}
	lang := p.cfg.Language
	if req.Language != "" {
		lang = req.Language
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("audio", "segment.wav")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return nil, fmt.Errorf("write audio data: %w", err)
	}
	_ = writer.WriteField("model", model)
	if lang != "" {
		_ = writer.WriteField("language", lang)
	}
	if p.cfg.Device != "" {
		_ = writer.WriteField("device", p.cfg.Device)
	}
	if p.cfg.ComputeType != "" {
		_ = writer.WriteField("compute_type", p.cfg.ComputeType)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL+"/transcribe", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("User-Agent", version.UserAgent())

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.ServiceUnavailable("whisper sidecar").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		cause := fmt.Errorf("whisper status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, apperrors.ServiceUnavailable("whisper sidecar").WithCause(cause)
		}
		return nil, apperrors.Internal(cause)
	}

	var result whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperrors.Internal(fmt.Errorf("decode whisper response: %w", err))
	}
	return result.toResponse(), nil
}

type whisperResponse struct {
	Text     string           `json:"text"`
	Segments []whisperSegment `json:"segments"`
	Language string           `json:"language"`
}

type whisperSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (r *whisperResponse) toResponse() *transcription.Response {
	segments := make([]transcription.Segment, len(r.Segments))
	for i, seg := range r.Segments {
		segments[i] = transcription.Segment{Start: seg.Start, End: seg.End, Text: seg.Text}
	}
	var duration float64
	if len(r.Segments) > 0 {
		duration = r.Segments[len(r.Segments)-1].End
	}
	return &transcription.Response{
		Text:     r.Text,
		Segments: segments,
		Duration: duration,
		Language: r.Language,
	}
}
