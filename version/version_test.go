package version

import (
	"strings"
	"testing"
)

func override(t *testing.T, version, commit, built string) {
	t.Helper()
	origVersion, origCommit, origBuilt := Version, GitCommit, BuildTime
	Version, GitCommit, BuildTime = version, commit, built
	t.Cleanup(func() { Version, GitCommit, BuildTime = origVersion, origCommit, origBuilt })
}

func TestGet(t *testing.T) {
	tests := []struct {
		name        string
		version     string
		commit      string
		wantRelease bool
		wantCommit  string
	}{
		{"dev build", "dev", "", false, ""},
		{"release", "1.4.0", "abc1234", true, "abc1234"},
		{"long commit is shortened", "1.4.0", "abc1234def5678", true, "abc1234"},
		{"dirty tag", "1.4.0-dirty", "abc1234", false, "abc1234"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			override(t, tt.version, tt.commit, "2026-01-15T10:30:00Z")
			info := Get()
			if info.Version != tt.version {
				t.Errorf("Version = %q", info.Version)
			}
			if info.IsDirty {
				// Test binaries built from a modified tree are never releases.
				return
			}
			if info.IsRelease != tt.wantRelease {
				t.Errorf("IsRelease = %v, want %v", info.IsRelease, tt.wantRelease)
			}
			if tt.wantCommit != "" && info.GitCommit != tt.wantCommit {
				t.Errorf("GitCommit = %q, want %q", info.GitCommit, tt.wantCommit)
			}
			if info.BuildTime != "2026-01-15T10:30:00Z" {
				t.Errorf("BuildTime = %q", info.BuildTime)
			}
		})
	}
}

func TestShort(t *testing.T) {
	tests := []struct {
		info Info
		want string
	}{
		{Info{Version: "dev"}, "dev"},
		{Info{Version: "1.0.0", GitCommit: "abc1234"}, "1.0.0-abc1234"},
		{Info{Version: "1.0.0", GitCommit: "abc1234", IsDirty: true}, "1.0.0-abc1234-dirty"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.info.Short(); got != tt.want {
				t.Fatalf("Short() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUserAgent(t *testing.T) {
	override(t, "2.0.0", "fedcba9", "")
	if ua := UserAgent(); !strings.HasPrefix(ua, "audioscribe/2.0.0-fedcba9") {
		t.Fatalf("UserAgent() = %q", ua)
	}
}
