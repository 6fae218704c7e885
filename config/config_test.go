package config

import (
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"
)

type testConfig struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`
	Server        struct {
		Port int    `mapstructure:"port"`
		Host string `mapstructure:"host"`
	} `mapstructure:"server"`
	Media struct {
		AllowedHosts []string `mapstructure:"allowed_hosts"`
	} `mapstructure:"media"`
}

func TestServiceConfigApplyDefaults(t *testing.T) {
	var c ServiceConfig
	c.ApplyDefaults()
	if c.Environment != "development" {
		t.Errorf("expected development, got %q", c.Environment)
	}
	if !c.Debug {
		t.Error("expected debug in development")
	}
	if c.Logging.Level != "info" {
		t.Errorf("expected logging defaults applied, got %q", c.Logging.Level)
	}
}

func TestServiceConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		cfg    ServiceConfig
		errMsg string
	}{
		{"valid", ServiceConfig{Name: "audioscribe", Environment: "production"}, ""},
		{"missing name", ServiceConfig{Environment: "production"}, "config.name is required"},
		{"bad env", ServiceConfig{Name: "a", Environment: "qa"}, "config.environment"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.cfg.Logging.ApplyDefaults()
			err := tc.cfg.Validate()
			if tc.errMsg != "" {
				if err == nil || !strings.Contains(err.Error(), tc.errMsg) {
					t.Errorf("expected error containing %q, got %v", tc.errMsg, err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return p
}

func TestLoadConfigWithYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yml", `
name: audioscribe
environment: staging
server:
  port: 9000
media:
  allowed_hosts: [youtube.com, youtu.be]
`)

	cfg := testConfig{}
	cfg.Server.Host = "0.0.0.0"
	if err := LoadConfig("audioscribe-test-yaml", &cfg, WithConfigFile(path)); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Name != "audioscribe" || cfg.Environment != "staging" {
		t.Errorf("unexpected service config %+v", cfg.ServiceConfig)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected preset default host to survive, got %q", cfg.Server.Host)
	}
	if !slices.Equal(cfg.Media.AllowedHosts, []string{"youtube.com", "youtu.be"}) {
		t.Errorf("unexpected hosts %v", cfg.Media.AllowedHosts)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yml", "server:\n  port: 9000\n")
	t.Setenv("ASENVTEST_SERVER_PORT", "9100")
	t.Setenv("SERVER_PORT", "1")

	var cfg testConfig
	if err := LoadConfig("asenvtest", &cfg, WithConfigFile(path)); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("expected prefixed env to win, got %d", cfg.Server.Port)
	}
}

func TestLoadConfigEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := writeFile(t, dir, ".env", "ASDOTENV_SERVER_HOST=127.0.0.9\n")
	t.Cleanup(func() { os.Unsetenv("ASDOTENV_SERVER_HOST") })

	var cfg testConfig
	if err := LoadConfig("asdotenv", &cfg, WithConfigFile(filepath.Join(dir, "none.yml")), WithEnvFile(envPath)); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Server.Host != "127.0.0.9" {
		t.Errorf("expected host from .env, got %q", cfg.Server.Host)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	var cfg testConfig
	err := LoadConfig("nonexistent-service", &cfg, WithConfigFile("/nonexistent/path.yml"))
	if err != nil {
		t.Fatalf("expected LoadConfig to succeed with missing file, got %v", err)
	}
}

func TestLoadConfigMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yml", "server: [unclosed\n")
	var cfg testConfig
	if err := LoadConfig("audioscribe", &cfg, WithConfigFile(path)); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestResolverWithMockFS(t *testing.T) {
	fs := &mockFS{files: map[string]bool{
		"./cmd/audioscribe/config.yml": true,
		".env":                         true,
	}}
	resolver := &Resolver{FileSystem: fs}
	files := resolver.ResolveFiles("audioscribe", LoaderConfig{})
	if files.ConfigFile != "./cmd/audioscribe/config.yml" {
		t.Errorf("expected config file at ./cmd/audioscribe/config.yml, got %q", files.ConfigFile)
	}
	if files.EnvFile != ".env" {
		t.Errorf("expected .env, got %q", files.EnvFile)
	}
}

type mockFS struct {
	files map[string]bool
}

func (m *mockFS) Exists(path string) bool   { return m.files[path] }
func (m *mockFS) LoadEnv(path string) error { return nil }

func TestResolverPrecedence(t *testing.T) {
	tests := []struct {
		name       string
		service    string
		files      []string
		wantConfig string
		wantEnv    string
	}{
		{"nothing found", "audioscribe", nil, "", ""},
		{"service env beats plain env", "audioscribe", []string{".env", "../config/.env.audioscribe"}, "", "../config/.env.audioscribe"},
		{"cmd dir beats root", "audioscribe", []string{"./config.yml", "../cmd/audioscribe/config.yml"}, "../cmd/audioscribe/config.yml", ""},
		{"short name fallback", "acme-audioscribe", []string{"./cmd/audioscribe/config.yml"}, "./cmd/audioscribe/config.yml", ""},
		{"config dir", "audioscribe", []string{"../../config/config.yml"}, "../../config/config.yml", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fs := &mockFS{files: map[string]bool{}}
			for _, f := range tc.files {
				fs.files[f] = true
			}
			got := (&Resolver{FileSystem: fs}).ResolveFiles(tc.service, LoaderConfig{})
			if got.ConfigFile != tc.wantConfig || got.EnvFile != tc.wantEnv {
				t.Errorf("got %+v, want config %q env %q", got, tc.wantConfig, tc.wantEnv)
			}
		})
	}
}

func TestResolverKeepsExplicitPaths(t *testing.T) {
	fs := &mockFS{files: map[string]bool{"./config.yml": true, ".env": true}}
	got := (&Resolver{FileSystem: fs}).ResolveFiles("audioscribe", LoaderConfig{ConfigFile: "a.yml", EnvFile: "b.env"})
	if got.ConfigFile != "a.yml" || got.EnvFile != "b.env" {
		t.Errorf("explicit paths replaced: %+v", got)
	}
}

func TestConfigKeys(t *testing.T) {
	got := configKeys(reflect.TypeOf(&testConfig{}), "")
	for _, want := range []string{"name", "environment", "logging.level", "server.port", "server.host", "media.allowed_hosts"} {
		if !slices.Contains(got, want) {
			t.Errorf("expected key %q in %v", want, got)
		}
	}
	if slices.Contains(got, "serviceconfig.name") {
		t.Error("squashed struct must not nest its keys")
	}
}

func TestConfigKeys_MapsAndSkips(t *testing.T) {
	type cfg struct {
		Backends map[string]map[string]any `mapstructure:"backends"`
		Ignored  string                    `mapstructure:"-"`
		hidden   string
		Timeout  time.Duration `mapstructure:"timeout"`
		Nested   *struct {
			Depth int
		} `mapstructure:"nested"`
	}
	got := configKeys(reflect.TypeOf(cfg{}), "")
	want := []string{"backends", "timeout", "nested.depth"}
	if !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestLoadConfigEnvOnlyKeys(t *testing.T) {
	t.Setenv("ASENVONLY_MEDIA_ALLOWED_HOSTS", "a.example,b.example")
	t.Setenv("ASENVONLY_LOGGING_LEVEL", "debug")

	var cfg testConfig
	if err := LoadConfig("asenvonly", &cfg, WithFileSystem(&mockFS{files: map[string]bool{}})); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if !slices.Equal(cfg.Media.AllowedHosts, []string{"a.example", "b.example"}) {
		t.Errorf("unexpected hosts %v", cfg.Media.AllowedHosts)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected squashed logging level from env, got %q", cfg.Logging.Level)
	}
}

func TestEnvPrefix(t *testing.T) {
	if got := EnvPrefix("audio-scribe"); got != "AUDIO_SCRIBE_" {
		t.Errorf("unexpected prefix %q", got)
	}
}
