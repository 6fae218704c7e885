package media

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/kbukum/audioscribe/component"
	"github.com/kbukum/audioscribe/logger"
)

// Toolchain reports whether the external binaries are installed.
type Toolchain struct {
	tools map[string]string
	order []string
	log   *logger.Logger
}

var (
	_ component.Component   = (*Toolchain)(nil)
	_ component.Describable = (*Toolchain)(nil)
)

// NewToolchain creates the component for the binaries named in cfg.
func NewToolchain(cfg Config, log *logger.Logger) *Toolchain {
	cfg.ApplyDefaults()
	return &Toolchain{
		tools: map[string]string{
			"ffmpeg":  cfg.FFmpegPath,
			"ffprobe": cfg.FFprobePath,
			"yt-dlp":  cfg.YtDlpPath,
		},
		order: []string{"ffmpeg", "ffprobe", "yt-dlp"},
		log:   logger.OrDefault(log).WithComponent("media"),
	}
}

// Name implements component.Component.
func (t *Toolchain) Name() string { return "media" }

// Start logs missing binaries. A missing tool only disables the jobs that
// need it, so it is not a startup failure.
func (t *Toolchain) Start(_ context.Context) error {
	for _, name := range t.Missing() {
		t.log.Warn("media tool not found", logger.Fields("tool", name, "binary", t.tools[name]))
	}
	return nil
}

// Stop implements component.Component.
func (t *Toolchain) Stop(_ context.Context) error { return nil }

// Missing returns the tools that cannot be resolved.
func (t *Toolchain) Missing() []string {
	var missing []string
	for _, name := range t.order {
		if _, err := exec.LookPath(t.tools[name]); err != nil {
			missing = append(missing, name)
		}
	}
	return missing
}

// Health is unhealthy without ffmpeg and degraded when only the others are missing.
func (t *Toolchain) Health(_ context.Context) component.Health {
	missing := t.Missing()
	h := component.Health{Name: t.Name(), Status: component.StatusHealthy}
	if len(missing) == 0 {
		return h
	}
	h.Status = component.StatusDegraded
	h.Message = "missing " + strings.Join(missing, ", ")
	if missing[0] == "ffmpeg" {
		h.Status = component.StatusUnhealthy
	}
	return h
}

// Describe implements component.Describable.
func (t *Toolchain) Describe() component.Description {
	return component.Description{
		Name:    "Media Tools",
		Type:    "media",
		Details: fmt.Sprintf("ffmpeg=%s ytdlp=%s", t.tools["ffmpeg"], t.tools["yt-dlp"]),
	}
}
