package main

import (
	"fmt"

	"github.com/kbukum/audioscribe/config"
	"github.com/kbukum/audioscribe/denoise"
	"github.com/kbukum/audioscribe/media"
	"github.com/kbukum/audioscribe/observability"
	"github.com/kbukum/audioscribe/server"
	"github.com/kbukum/audioscribe/session"
	"github.com/kbukum/audioscribe/transcribe"
	"github.com/kbukum/audioscribe/transcription"
	"github.com/kbukum/audioscribe/validation"
	"github.com/kbukum/audioscribe/workerpool"
)

// Config is the service configuration. It is loaded once at startup and not
// modified afterwards.
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Server     server.Config        `yaml:"server" mapstructure:"server"`
	Session    session.Config       `yaml:"session" mapstructure:"session"`
	Pipeline   transcribe.Config    `yaml:"pipeline" mapstructure:"pipeline"`
	Denoise    denoise.Config       `yaml:"denoise" mapstructure:"denoise"`
	Pool       workerpool.Config    `yaml:"pool" mapstructure:"pool"`
	Media      media.Config         `yaml:"media" mapstructure:"media"`
	Recognizer transcription.Config `yaml:"recognizer" mapstructure:"recognizer"`
	Telemetry  observability.Config `yaml:"telemetry" mapstructure:"telemetry"`
}

// ApplyDefaults fills every section. The transcode rate drives the pipeline
// rate so canonical files are recognized without resampling.
func (c *Config) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	if c.Name == "" {
		c.Name = serviceName
	}
	c.Server.ApplyDefaults()
	c.Session.ApplyDefaults()
	c.Media.ApplyDefaults()
	c.Pipeline.SampleRate = c.Media.SampleRate
	c.Pipeline.ApplyDefaults()
	c.Denoise.ApplyDefaults()
	c.Pool.ApplyDefaults()
	c.Recognizer.ApplyDefaults()
	c.Telemetry.ApplyDefaults()
	if c.Session.MaxDuration <= 0 {
		c.Session.MaxDuration = c.Media.MaxDuration
	}
}

// Validate checks the base fields, the server section and every struct tag.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("config.server: %w", err)
	}
	if err := validation.Validate(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
