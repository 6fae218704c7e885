package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// ErrBinaryNotFound is returned when the executable cannot be resolved.
var ErrBinaryNotFound = errors.New("process: binary not found")

// Run executes a subprocess and waits for it to complete.
// If the context is canceled, SIGTERM is sent first, then SIGKILL after GracePeriod.
func Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Binary == "" {
		return nil, fmt.Errorf("process: binary is required")
	}

	gracePeriod := cmd.GracePeriod
	if gracePeriod == 0 {
		gracePeriod = 5 * time.Second
	}

	c := exec.CommandContext(ctx, cmd.Binary, cmd.Args...) //nolint:gosec // running configured tools is the purpose of this package
	c.Dir = cmd.Dir
	c.Env = mergeEnv(cmd.Env)

	var stdout, stderr bytes.Buffer
	outLines := newLineWriter(cmd.OnStdoutLine)
	errLines := newLineWriter(cmd.OnStderrLine)
	c.Stdout = teeTo(&stdout, outLines)
	c.Stderr = teeTo(&stderr, errLines)
	if cmd.Stdin != nil {
		c.Stdin = cmd.Stdin
	}

	// Own process group so cancellation reaches the whole tree.
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		if c.Process == nil {
			return nil
		}
		return syscall.Kill(-c.Process.Pid, syscall.SIGTERM)
	}
	c.WaitDelay = gracePeriod

	start := time.Now()
	err := c.Run()
	outLines.flush()
	errLines.flush()

	result := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: c.ProcessState.ExitCode(),
		Duration: time.Since(start),
	}

	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return result, fmt.Errorf("%w: %s", ErrBinaryNotFound, cmd.Binary)
		}
		if ctx.Err() != nil {
			return result, fmt.Errorf("process: killed by context: %w", ctx.Err())
		}
		return result, fmt.Errorf("process: exit code %d: %w", result.ExitCode, err)
	}
	return result, nil
}

// mergeEnv merges additional env vars with the current environment.
func mergeEnv(extra []string) []string {
	if len(extra) == 0 {
		return nil // inherit parent env
	}
	return append(os.Environ(), extra...)
}

func teeTo(buf *bytes.Buffer, lw *lineWriter) io.Writer {
	if lw == nil {
		return buf
	}
	return io.MultiWriter(buf, lw)
}

// lineWriter splits a byte stream into lines for a callback.
type lineWriter struct {
	fn      func(string)
	pending []byte
}

func newLineWriter(fn func(string)) *lineWriter {
	if fn == nil {
		return nil
	}
	return &lineWriter{fn: fn}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.pending = append(w.pending, p...)
	for {
		i := bytes.IndexAny(w.pending, "\r\n")
		if i < 0 {
			break
		}
		if i > 0 {
			w.fn(string(w.pending[:i]))
		}
		w.pending = w.pending[i+1:]
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	if w == nil || len(w.pending) == 0 {
		return
	}
	w.fn(string(w.pending))
	w.pending = nil
}
