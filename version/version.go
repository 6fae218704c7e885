package version

import (
	"runtime/debug"
	"strings"
	"sync"
)

// Set with -ldflags -X.
var (
	Version   = "dev"
	GitCommit = ""
	BuildTime = ""
)

// Product prefixes the User-Agent of outgoing requests.
const Product = "audioscribe"

// Info is the build information of the running binary.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version"`
	IsRelease bool   `json:"is_release"`
	IsDirty   bool   `json:"is_dirty"`
}

var (
	buildInfoOnce sync.Once
	buildSettings map[string]string
	goVersion     string
)

func readBuildInfo() {
	buildSettings = map[string]string{}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	goVersion = bi.GoVersion
	for _, s := range bi.Settings {
		buildSettings[s.Key] = s.Value
	}
}

// Get returns the build information. Link-time values take precedence over
// VCS settings.
func Get() Info {
	buildInfoOnce.Do(readBuildInfo)
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: goVersion,
		IsDirty:   buildSettings["vcs.modified"] == "true",
	}
	if info.GitCommit == "" {
		info.GitCommit = buildSettings["vcs.revision"]
	}
	if len(info.GitCommit) > 7 {
		info.GitCommit = info.GitCommit[:7]
	}
	if info.BuildTime == "" {
		info.BuildTime = buildSettings["vcs.time"]
	}
	info.IsRelease = info.Version != "dev" && !info.IsDirty && !strings.Contains(info.Version, "dirty")
	return info
}

// Short returns "version[-commit][-dirty]".
func (i Info) Short() string {
	s := i.Version
	if i.GitCommit != "" {
		s += "-" + i.GitCommit
	}
	if i.IsDirty {
		s += "-dirty"
	}
	return s
}

// UserAgent returns the User-Agent for outgoing recognizer requests.
func UserAgent() string {
	return Product + "/" + Get().Short()
}
