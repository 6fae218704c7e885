package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
	FormatPretty  = "pretty"
)

// Logger is a zerolog logger bound to one service. Child loggers share the
// writer and add context fields.
type Logger struct {
	zl      zerolog.Logger
	service string
}

// New builds a logger writing to cfg.Output.
func New(cfg *Config, serviceName string) *Logger {
	w := io.Writer(os.Stdout)
	if strings.EqualFold(cfg.Output, "stderr") {
		w = os.Stderr
	}
	return NewWithWriter(cfg, serviceName, w)
}

// NewWithWriter builds a logger writing to w. An unknown level means info.
func NewWithWriter(cfg *Config, serviceName string, w io.Writer) *Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	switch strings.ToLower(cfg.Format) {
	case FormatConsole, FormatPretty:
		w = consoleWriter(w, serviceName, cfg.NoColor)
	}

	zc := zerolog.New(w).Level(level).With().Str(FieldService, serviceName)
	if cfg.Timestamp {
		zc = zc.Timestamp()
	}
	if cfg.Caller {
		zc = zc.Caller()
	}
	return &Logger{zl: zc.Logger(), service: serviceName}
}

// NewDefault is a console logger at info level.
func NewDefault(serviceName string) *Logger {
	cfg := Config{}
	cfg.ApplyDefaults()
	return New(&cfg, serviceName)
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func (l *Logger) derive(add func(zerolog.Context) zerolog.Context) *Logger {
	return &Logger{zl: add(l.zl.With()).Logger(), service: l.service}
}

func (l *Logger) WithComponent(name string) *Logger {
	return l.derive(func(c zerolog.Context) zerolog.Context { return c.Str(FieldComponent, name) })
}

// WithJob tags job_id, plus session_kind when kind is set.
func (l *Logger) WithJob(jobID, kind string) *Logger {
	return l.derive(func(c zerolog.Context) zerolog.Context {
		c = c.Str(FieldJobID, jobID)
		if kind != "" {
			c = c.Str(FieldSessionKind, kind)
		}
		return c
	})
}

func (l *Logger) WithError(err error) *Logger {
	return l.derive(func(c zerolog.Context) zerolog.Context { return c.Err(err) })
}

func (l *Logger) Debug(msg string, fields ...map[string]any) { emit(l.zl.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...map[string]any)  { emit(l.zl.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...map[string]any)  { emit(l.zl.Warn(), msg, fields) }
func (l *Logger) Error(msg string, fields ...map[string]any) { emit(l.zl.Error(), msg, fields) }

// Fatal logs and exits the process.
func (l *Logger) Fatal(msg string, fields ...map[string]any) { emit(l.zl.Fatal(), msg, fields) }

// emit tolerates a nil event, which zerolog returns for disabled levels.
func emit(e *zerolog.Event, msg string, fields []map[string]any) {
	if e == nil {
		return
	}
	for _, m := range fields {
		e.Fields(m)
	}
	e.Msg(msg)
}

var (
	globalMu sync.Mutex
	global   *Logger
)

// SetGlobalLogger installs the fallback returned by GetGlobalLogger.
func SetGlobalLogger(l *Logger) {
	globalMu.Lock()
	global = l
	globalMu.Unlock()
}

// GetGlobalLogger returns the installed fallback, creating a default one
// on first use. Components normally get their logger injected.
func GetGlobalLogger() *Logger {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		global = NewDefault("default")
	}
	return global
}

// OrDefault returns l unless it is nil.
func OrDefault(l *Logger) *Logger {
	if l == nil {
		return GetGlobalLogger()
	}
	return l
}

const (
	ansiReset = "\033[0m"
	ansiBlue  = "\033[34m"
)

var levelColor = map[string]string{
	"DBG": "\033[36m",
	"INF": "\033[32m",
	"WRN": "\033[33m",
	"ERR": "\033[31m",
	"FTL": "\033[35m",
}

// consoleWriter prints "[SVC][LVL] message key:value". SVC is the first
// three letters of the service name.
func consoleWriter(out io.Writer, serviceName string, noColor bool) zerolog.ConsoleWriter {
	paint := func(color, s string) string {
		if noColor || color == "" {
			return s
		}
		return color + s + ansiReset
	}
	svcTag := ""
	if len(serviceName) >= 3 && serviceName != "default" {
		svcTag = paint(ansiBlue, "["+strings.ToUpper(serviceName[:3])+"]")
	}
	return zerolog.ConsoleWriter{
		Out:           out,
		NoColor:       noColor,
		TimeFormat:    "15:04:05",
		FieldsExclude: []string{FieldService},
		FormatLevel: func(i any) string {
			lvl := strings.ToUpper(fmt.Sprint(i))
			if len(lvl) > 3 {
				lvl = shortLevel(lvl)
			}
			return svcTag + paint(levelColor[lvl], "["+lvl+"]")
		},
		FormatFieldName: func(i any) string { return fmt.Sprint(i) + ":" },
	}
}

func shortLevel(lvl string) string {
	switch lvl {
	case "DEBUG":
		return "DBG"
	case "WARN":
		return "WRN"
	case "ERROR":
		return "ERR"
	case "FATAL":
		return "FTL"
	case "TRACE":
		return "TRC"
	}
	return lvl[:3]
}
