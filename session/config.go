package session

import "time"

// Config bounds client sessions.
type Config struct {
	// MaxUploadBytes caps one uploaded file.
	MaxUploadBytes int64 `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes" validate:"gte=0"`
	// ProgressInterval is the minimum gap between progress events.
	ProgressInterval time.Duration `yaml:"progress_interval" mapstructure:"progress_interval"`
	// MaxDuration caps remote media; zero uses the fetcher's limit.
	MaxDuration time.Duration `yaml:"max_duration" mapstructure:"max_duration"`
}

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 200 << 20
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = 250 * time.Millisecond
	}
}
