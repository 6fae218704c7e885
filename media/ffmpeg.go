// Package media adapts the external media tools: ffmpeg normalizes any input
// to canonical WAV, ffprobe reads durations and yt-dlp fetches remote audio
// after the URL passes the host allow-list.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	apperrors "github.com/kbukum/audioscribe/errors"
	"github.com/kbukum/audioscribe/logger"
	"github.com/kbukum/audioscribe/process"
)

// wavHeaderSize is the size of a canonical PCM WAV header. A transcode that
// produces no more than this carries no audio.
const wavHeaderSize = 44

// Transcoder normalizes an input file to mono 16-bit PCM WAV at rate.
type Transcoder interface {
	Transcode(ctx context.Context, inputPath, outputPath string, rate int) error
}

// Prober reports the playing time of a media file.
type Prober interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// FFmpeg is the ffmpeg Transcoder and ffprobe Prober.
type FFmpeg struct {
	ffmpeg  string
	ffprobe string
	runner  *process.Runner
	timeout time.Duration
	log     *logger.Logger
}

var (
	_ Transcoder = (*FFmpeg)(nil)
	_ Prober     = (*FFmpeg)(nil)
)

// NewFFmpeg creates the adapter from the tool paths in cfg.
func NewFFmpeg(cfg Config, log *logger.Logger) *FFmpeg {
	cfg.ApplyDefaults()
	log = logger.OrDefault(log).WithComponent("ffmpeg")
	return &FFmpeg{
		ffmpeg:  cfg.FFmpegPath,
		ffprobe: cfg.FFprobePath,
		runner:  process.NewRunner(process.Config{GracePeriod: cfg.GracePeriod}, log),
		timeout: cfg.TranscodeTimeout,
		log:     log,
	}
}

// Transcode runs ffmpeg. On any failure the output path is removed, so a
// caller never sees a partial file; on success the output is checked to hold
// audio beyond the header.
func (f *FFmpeg) Transcode(ctx context.Context, inputPath, outputPath string, rate int) error {
	if rate <= 0 {
		return apperrors.Transcode("Conversion failed: invalid sample rate", nil)
	}
	parent := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	res, err := f.runner.Run(ctx, process.Command{
		Binary: f.ffmpeg,
		Args: []string{
			"-nostdin", "-hide_banner", "-loglevel", "error", "-y",
			"-i", inputPath,
			"-vn", "-ac", "1", "-ar", strconv.Itoa(rate),
			"-c:a", "pcm_s16le", "-f", "wav",
			outputPath,
		},
	})
	if err != nil {
		_ = os.Remove(outputPath)
		if parentErr := parent.Err(); parentErr != nil {
			return parentErr
		}
		if ctx.Err() != nil {
			return apperrors.Transcode("Conversion timed out", err)
		}
		return apperrors.Transcode(transcodeReason(res, err), err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return apperrors.Transcode("Conversion failed: no output produced", err)
	}
	if info.Size() <= wavHeaderSize {
		_ = os.Remove(outputPath)
		return apperrors.Transcode("Conversion failed: output contains no audio", nil)
	}
	f.log.Debug("transcoded", logger.Fields(logger.FieldPath, outputPath, "bytes", info.Size(), logger.FieldDuration, res.Duration.Milliseconds()))
	return nil
}

func transcodeReason(res *process.Result, err error) string {
	if errors.Is(err, process.ErrBinaryNotFound) {
		return "Conversion failed: ffmpeg is not installed"
	}
	if tail := res.StderrTail(2); tail != "" {
		return "Conversion failed: " + tail
	}
	return "Conversion failed"
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Duration runs ffprobe and returns the container duration.
func (f *FFmpeg) Duration(ctx context.Context, path string) (time.Duration, error) {
	res, err := f.runner.Run(ctx, process.Command{
		Binary: f.ffprobe,
		Args:   []string{"-v", "error", "-show_entries", "format=duration", "-of", "json", path},
	})
	if err != nil {
		if tail := res.StderrTail(1); tail != "" {
			return 0, fmt.Errorf("ffprobe: %s: %w", tail, err)
		}
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	var out probeOutput
	if err := json.Unmarshal(res.Stdout, &out); err != nil {
		return 0, fmt.Errorf("ffprobe: parse output: %w", err)
	}
	secs, err := strconv.ParseFloat(out.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe: parse duration %q: %w", out.Format.Duration, err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
