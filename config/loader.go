package config

import (
	"fmt"
	"os"
	"path"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// FileSystem is the slice of the OS the loader touches.
type FileSystem interface {
	Exists(path string) bool
	LoadEnv(path string) error
}

type osFS struct{}

func (osFS) Exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func (osFS) LoadEnv(p string) error { return godotenv.Load(p) }

// ResolvedFiles names the files LoadConfig will read. Empty means none.
type ResolvedFiles struct {
	ConfigFile string
	EnvFile    string
}

// Resolver locates config.yml and .env files for a service.
type Resolver struct {
	FileSystem FileSystem
}

// ResolveFiles keeps explicit paths from opts and searches for the rest.
func (r *Resolver) ResolveFiles(serviceName string, opts LoaderConfig) ResolvedFiles {
	files := ResolvedFiles{ConfigFile: opts.ConfigFile, EnvFile: opts.EnvFile}
	dirs := searchDirs(serviceName)
	if files.ConfigFile == "" {
		files.ConfigFile = r.first(dirs, "config.yml")
	}
	if files.EnvFile == "" {
		files.EnvFile = r.first(dirs, ".env."+serviceName, ".env")
	}
	return files
}

// first returns the first existing dir/name, trying names in order across
// every directory before moving to the next name.
func (r *Resolver) first(dirs []string, names ...string) string {
	for _, name := range names {
		for _, dir := range dirs {
			p := name
			if dir != "." {
				p = dir + "/" + name
			}
			if r.FileSystem.Exists(p) {
				return p
			}
		}
	}
	return ""
}

// searchDirs lists the directories probed for service files, nearest first.
// A dashed name such as "acme-audioscribe" also probes its last segment.
func searchDirs(serviceName string) []string {
	names := []string{serviceName}
	if i := strings.LastIndex(serviceName, "-"); i >= 0 && i < len(serviceName)-1 {
		names = append(names, serviceName[i+1:])
	}

	var bases []string
	for _, n := range names {
		bases = append(bases, "cmd/"+n)
	}
	bases = append(bases, "config", "")

	var dirs []string
	for _, b := range bases {
		for _, up := range []string{".", "..", "../.."} {
			dirs = append(dirs, path.Join(up, b))
		}
	}
	// path.Join drops the leading "./"; restore it for cwd-relative entries.
	for i, d := range dirs {
		if d != "." && !strings.HasPrefix(d, "..") {
			dirs[i] = "./" + d
		}
	}
	return dirs
}

// LoaderConfig holds loader dependencies and explicit overrides.
type LoaderConfig struct {
	FileSystem FileSystem
	ConfigFile string
	EnvFile    string
	// EnvPrefix defaults to EnvPrefix(serviceName).
	EnvPrefix string
}

// LoaderOption configures LoadConfig.
type LoaderOption func(*LoaderConfig)

func WithFileSystem(fs FileSystem) LoaderOption {
	return func(lc *LoaderConfig) { lc.FileSystem = fs }
}

func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

func WithEnvPrefix(prefix string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvPrefix = prefix }
}

// LoadConfig fills cfg, a pointer to a struct tagged with mapstructure keys.
// Values already in cfg survive unless the YAML file or a prefixed
// environment variable sets them. A missing file is not an error.
func LoadConfig(serviceName string, cfg any, opts ...LoaderOption) error {
	lc := LoaderConfig{FileSystem: osFS{}, EnvPrefix: EnvPrefix(serviceName)}
	for _, opt := range opts {
		opt(&lc)
	}
	files := (&Resolver{FileSystem: lc.FileSystem}).ResolveFiles(serviceName, lc)

	v := viper.New()
	if files.ConfigFile != "" && lc.FileSystem.Exists(files.ConfigFile) {
		v.SetConfigFile(files.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", files.ConfigFile, err)
		}
	}
	if files.EnvFile != "" && lc.FileSystem.Exists(files.EnvFile) {
		if err := lc.FileSystem.LoadEnv(files.EnvFile); err != nil {
			return fmt.Errorf("load env file %s: %w", files.EnvFile, err)
		}
	}
	for _, key := range configKeys(reflect.TypeOf(cfg), "") {
		envName := lc.EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envName); err != nil {
			return fmt.Errorf("bind %s: %w", envName, err)
		}
	}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("decode config for %s: %w", serviceName, err)
	}
	return nil
}

// EnvPrefix maps a service name to its variable prefix: "audio-scribe"
// becomes "AUDIO_SCRIBE_".
func EnvPrefix(serviceName string) string {
	return strings.ToUpper(strings.ReplaceAll(serviceName, "-", "_")) + "_"
}

var timeType = reflect.TypeOf(time.Time{})

// configKeys lists the dotted leaf keys of t's mapstructure layout. Squashed
// structs contribute their keys at the parent level. Maps are leaves: their
// keys are data and cannot be known up front.
func configKeys(t reflect.Type, prefix string) []string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || t == timeType {
		return nil
	}
	var keys []string
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, squash := parseTag(f)
		if name == "-" {
			continue
		}
		ft := f.Type
		for ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if squash {
			keys = append(keys, configKeys(ft, prefix)...)
			continue
		}
		key := prefix + name
		if ft.Kind() == reflect.Struct && ft != timeType {
			keys = append(keys, configKeys(ft, key+".")...)
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

func parseTag(f reflect.StructField) (name string, squash bool) {
	tag := f.Tag.Get("mapstructure")
	name, rest, _ := strings.Cut(tag, ",")
	squash = strings.Contains(rest, "squash")
	if name == "" {
		name = strings.ToLower(f.Name)
	}
	return name, squash
}
