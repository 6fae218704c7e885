package vad

import "time"

// Config holds the detector settings for segmentation and noise profiling.
// Segmentation and noise profiling share framing but use separate thresholds.
type Config struct {
	FrameLength      int           `yaml:"frame_length" mapstructure:"frame_length" validate:"gt=0"`
	HopLength        int           `yaml:"hop_length" mapstructure:"hop_length" validate:"gt=0"`
	SegmentTopDB     float64       `yaml:"segment_top_db" mapstructure:"segment_top_db" validate:"gt=0"`
	NoiseTopDB       float64       `yaml:"noise_top_db" mapstructure:"noise_top_db" validate:"gt=0"`
	NoiseMinDuration time.Duration `yaml:"noise_min_duration" mapstructure:"noise_min_duration" validate:"gt=0"`
}

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	if c.FrameLength <= 0 {
		c.FrameLength = 2048
	}
	if c.HopLength <= 0 {
		c.HopLength = 512
	}
	if c.SegmentTopDB <= 0 {
		c.SegmentTopDB = 25
	}
	if c.NoiseTopDB <= 0 {
		c.NoiseTopDB = 20
	}
	if c.NoiseMinDuration <= 0 {
		c.NoiseMinDuration = 500 * time.Millisecond
	}
}

// SegmentParams returns the framing used for segmentation.
func (c Config) SegmentParams() Params {
	return Params{FrameLength: c.FrameLength, HopLength: c.HopLength, TopDB: c.SegmentTopDB}
}

// NoiseParams returns the framing used for noise profiling.
func (c Config) NoiseParams() Params {
	return Params{FrameLength: c.FrameLength, HopLength: c.HopLength, TopDB: c.NoiseTopDB}
}
