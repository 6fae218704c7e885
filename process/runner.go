package process

import (
	"context"
	"time"

	"github.com/kbukum/audioscribe/logger"
)

// Config holds defaults shared by every command a Runner executes.
type Config struct {
	// GracePeriod is the SIGTERM to SIGKILL delay for commands that set none.
	GracePeriod time.Duration `yaml:"grace_period" mapstructure:"grace_period"`
	// Timeout bounds each command. Zero means only the caller's context applies.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// Runner executes commands with shared defaults and debug logging.
type Runner struct {
	config Config
	log    *logger.Logger
}

// NewRunner creates a runner. A nil log falls back to the global logger.
func NewRunner(cfg Config, log *logger.Logger) *Runner {
	return &Runner{config: cfg, log: logger.OrDefault(log).WithComponent("process")}
}

// Run executes cmd, applying the runner's defaults.
func (r *Runner) Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.GracePeriod == 0 && r.config.GracePeriod > 0 {
		cmd.GracePeriod = r.config.GracePeriod
	}
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	res, err := Run(ctx, cmd)
	fields := logger.Fields("binary", cmd.Binary)
	if res != nil {
		fields[logger.FieldDuration] = res.Duration.Milliseconds()
		fields["exit_code"] = res.ExitCode
	}
	if err != nil {
		fields[logger.FieldError] = err.Error()
		r.log.Debug("command failed", fields)
		return res, err
	}
	r.log.Debug("command finished", fields)
	return res, nil
}
