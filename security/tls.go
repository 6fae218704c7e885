package security

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSConfig holds certificate settings for one side of a connection.
type TLSConfig struct {
	// CertFile and KeyFile are the PEM certificate and key this side presents.
	CertFile string `yaml:"cert_file" mapstructure:"cert_file"`
	KeyFile  string `yaml:"key_file" mapstructure:"key_file"`

	// CAFile verifies the peer. On a server it enables client certificate
	// verification; on a client it replaces the system roots.
	CAFile string `yaml:"ca_file" mapstructure:"ca_file"`

	// ServerName overrides the name a client verifies.
	ServerName string `yaml:"server_name" mapstructure:"server_name"`
	// SkipVerify disables peer verification on a client.
	SkipVerify bool `yaml:"skip_verify" mapstructure:"skip_verify"`

	// MinVersion defaults to TLS 1.2.
	MinVersion uint16 `yaml:"min_version" mapstructure:"min_version"`
}

// Validate checks that the settings are consistent.
func (c *TLSConfig) Validate() error {
	if c == nil {
		return nil
	}
	if (c.CertFile != "") != (c.KeyFile != "") {
		return fmt.Errorf("security/tls: both cert_file and key_file must be provided together")
	}
	return nil
}

// ServesTLS reports whether a listener should terminate TLS.
func (c *TLSConfig) ServesTLS() bool {
	return c != nil && c.CertFile != "" && c.KeyFile != ""
}

// Build returns the listener configuration, or nil when no certificate is
// configured.
func (c *TLSConfig) Build() (*tls.Config, error) {
	if !c.ServesTLS() {
		return nil, nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	cfg := &tls.Config{MinVersion: c.minVersion()}
	if err := c.loadKeyPair(cfg); err != nil {
		return nil, err
	}
	if c.CAFile != "" {
		pool, err := c.loadPool()
		if err != nil {
			return nil, err
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg, nil
}

// BuildClient returns the dialer configuration, or nil when nothing is set.
func (c *TLSConfig) BuildClient() (*tls.Config, error) {
	if c == nil || (c.CertFile == "" && c.CAFile == "" && c.ServerName == "" && !c.SkipVerify) {
		return nil, nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	cfg := &tls.Config{
		InsecureSkipVerify: c.SkipVerify,
		ServerName:         c.ServerName,
		MinVersion:         c.minVersion(),
	}
	if c.CAFile != "" {
		pool, err := c.loadPool()
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}
	if c.CertFile != "" {
		if err := c.loadKeyPair(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func (c *TLSConfig) minVersion() uint16 {
	if c.MinVersion == 0 {
		return tls.VersionTLS12
	}
	return c.MinVersion
}

func (c *TLSConfig) loadPool() (*x509.CertPool, error) {
	ca, err := os.ReadFile(c.CAFile)
	if err != nil {
		return nil, fmt.Errorf("security/tls: failed to read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(ca) {
		return nil, fmt.Errorf("security/tls: failed to parse CA certificate")
	}
	return pool, nil
}

func (c *TLSConfig) loadKeyPair(cfg *tls.Config) error {
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return fmt.Errorf("security/tls: failed to load certificate: %w", err)
	}
	cfg.Certificates = []tls.Certificate{cert}
	return nil
}
