// Package process runs external tools (ffmpeg, ffprobe, yt-dlp) as
// subprocesses: context cancellation sends SIGTERM to the whole process
// group and escalates to SIGKILL after a grace period, and output can be
// consumed line by line while the tool runs.
package process

import (
	"io"
	"time"
)

// Command configures a subprocess to execute.
type Command struct {
	// Binary is the executable path or name (resolved via PATH).
	Binary string
	// Args are the command-line arguments.
	Args []string
	// Dir is the working directory. If empty, uses the current directory.
	Dir string
	// Env is additional environment variables (key=value), merged with os.Environ.
	Env []string
	// Stdin provides input to the process. May be nil.
	Stdin io.Reader
	// GracePeriod is how long to wait after SIGTERM before SIGKILL.
	// Defaults to 5 seconds if zero.
	GracePeriod time.Duration
	// OnStdoutLine, if set, receives each stdout line without its newline
	// as soon as it is written. Carriage returns also end a line.
	OnStdoutLine func(line string)
	// OnStderrLine is OnStdoutLine for stderr.
	OnStderrLine func(line string)
}
