package media

import (
	"time"

	"github.com/kbukum/audioscribe/audio"
)

// Config locates the external tools and bounds remote media.
type Config struct {
	FFmpegPath  string `yaml:"ffmpeg_path" mapstructure:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path" mapstructure:"ffprobe_path"`
	YtDlpPath   string `yaml:"ytdlp_path" mapstructure:"ytdlp_path"`
	// SampleRate is the canonical output rate of every transcode.
	SampleRate int `yaml:"sample_rate" mapstructure:"sample_rate" validate:"gte=8000"`
	// MaxDuration rejects remote media longer than this.
	MaxDuration time.Duration `yaml:"max_duration" mapstructure:"max_duration"`
	// AllowedHosts are the URL hosts remote jobs may fetch from. A leading
	// "*." matches any subdomain.
	AllowedHosts []string `yaml:"allowed_hosts" mapstructure:"allowed_hosts" validate:"min=1"`
	// GracePeriod is how long a cancelled tool gets between SIGTERM and SIGKILL.
	GracePeriod time.Duration `yaml:"grace_period" mapstructure:"grace_period"`
	// TranscodeTimeout and FetchTimeout bound one tool invocation.
	TranscodeTimeout time.Duration `yaml:"transcode_timeout" mapstructure:"transcode_timeout"`
	FetchTimeout     time.Duration `yaml:"fetch_timeout" mapstructure:"fetch_timeout"`
	// TempDir holds every job's temporary files; empty uses the OS default.
	TempDir string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// DefaultAllowedHosts is used when no hosts are configured.
var DefaultAllowedHosts = []string{"youtube.com", "*.youtube.com", "youtu.be"}

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.FFprobePath == "" {
		c.FFprobePath = "ffprobe"
	}
	if c.YtDlpPath == "" {
		c.YtDlpPath = "yt-dlp"
	}
	if c.SampleRate <= 0 {
		c.SampleRate = audio.DefaultSampleRate
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = 30 * time.Minute
	}
	if len(c.AllowedHosts) == 0 {
		c.AllowedHosts = append([]string(nil), DefaultAllowedHosts...)
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = 3 * time.Second
	}
	if c.TranscodeTimeout <= 0 {
		c.TranscodeTimeout = 10 * time.Minute
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 15 * time.Minute
	}
}
