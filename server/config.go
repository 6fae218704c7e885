package server

import (
	"fmt"
	"time"

	"github.com/kbukum/audioscribe/resilience"
	"github.com/kbukum/audioscribe/security"
	"github.com/kbukum/audioscribe/server/middleware"
)

// Config holds HTTP server configuration.
type Config struct {
	Host         string                       `yaml:"host" mapstructure:"host"`
	Port         int                          `yaml:"port" mapstructure:"port"`
	ReadTimeout  int                          `yaml:"read_timeout" mapstructure:"read_timeout"`   // seconds
	WriteTimeout int                          `yaml:"write_timeout" mapstructure:"write_timeout"` // seconds
	IdleTimeout  int                          `yaml:"idle_timeout" mapstructure:"idle_timeout"`   // seconds
	MaxBodySize  string                       `yaml:"max_body_size" mapstructure:"max_body_size"` // e.g. "210MB"
	CORS         middleware.CORSConfig        `yaml:"cors" mapstructure:"cors"`
	RateLimit    resilience.RateLimiterConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	WebSocket    WebSocketConfig              `yaml:"websocket" mapstructure:"websocket"`
	// TLS terminates HTTPS on the listener when a key pair is set.
	TLS security.TLSConfig `yaml:"tls" mapstructure:"tls"`
}

// WebSocketConfig bounds streaming sessions.
type WebSocketConfig struct {
	// MaxMessageSize caps one client frame, i.e. one uploaded file. The
	// effective cap is never below the session's upload cap plus 1MB.
	MaxMessageSize string `yaml:"max_message_size" mapstructure:"max_message_size"`
	// WriteTimeout bounds each event write in seconds. A client that stops
	// reading is treated as gone.
	WriteTimeout int `yaml:"write_timeout" mapstructure:"write_timeout"`
	// HandshakeTimeout bounds the upgrade in seconds.
	HandshakeTimeout int `yaml:"handshake_timeout" mapstructure:"handshake_timeout"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 300
	}
	if c.WriteTimeout == 0 {
		// Single-shot responses are written after the whole transcription.
		c.WriteTimeout = 1800
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 120
	}
	if c.MaxBodySize == "" {
		c.MaxBodySize = "210MB"
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
	if len(c.CORS.AllowedMethods) == 0 {
		c.CORS.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(c.CORS.AllowedHeaders) == 0 {
		c.CORS.AllowedHeaders = []string{"Origin", "Content-Type", "Accept", "X-Request-Id"}
	}
	if c.RateLimit.Rate == 0 {
		c.RateLimit.Rate = 0.5
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 5
	}
	if c.WebSocket.MaxMessageSize == "" {
		c.WebSocket.MaxMessageSize = "200MB"
	}
	if c.WebSocket.WriteTimeout == 0 {
		c.WebSocket.WriteTimeout = 10
	}
	if c.WebSocket.HandshakeTimeout == 0 {
		c.WebSocket.HandshakeTimeout = 10
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535 (got: %d)", c.Port)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("server.read_timeout must be non-negative (got: %d)", c.ReadTimeout)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("server.write_timeout must be non-negative (got: %d)", c.WriteTimeout)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("server.idle_timeout must be non-negative (got: %d)", c.IdleTimeout)
	}
	if c.RateLimit.Rate < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("server.rate_limit must be non-negative")
	}
	if c.WebSocket.WriteTimeout < 0 || c.WebSocket.HandshakeTimeout < 0 {
		return fmt.Errorf("server.websocket timeouts must be non-negative")
	}
	if err := c.TLS.Validate(); err != nil {
		return fmt.Errorf("server.tls: %w", err)
	}
	return nil
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
