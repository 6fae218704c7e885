package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	apperrors "github.com/kbukum/audioscribe/errors"
	"github.com/kbukum/audioscribe/logger"
	"github.com/kbukum/audioscribe/process"
	"github.com/kbukum/audioscribe/tempres"
)

// FetchRequest describes one remote download.
type FetchRequest struct {
	URL string
	// MaxDuration overrides the configured limit when positive.
	MaxDuration time.Duration
	// Scope receives every temporary path the fetch creates.
	Scope *tempres.Scope
	// Progress, if set, receives a non-decreasing fraction in [0,1]. Sends
	// block until received or ctx ends. Fetch never closes it and sends
	// nothing after returning.
	Progress chan<- float64
}

// Fetcher downloads the audio of a remote media URL to a local file.
type Fetcher interface {
	// Validate checks the URL against the host allow-list without any I/O.
	Validate(rawURL string) error
	// Fetch downloads the media and returns its local path. The file is not
	// yet canonical and still needs a Transcoder.
	Fetch(ctx context.Context, req FetchRequest) (string, error)
}

// YtDlp is the yt-dlp Fetcher.
type YtDlp struct {
	bin         string
	hosts       *HostPolicy
	maxDuration time.Duration
	timeout     time.Duration
	prober      Prober
	runner      *process.Runner
	log         *logger.Logger
}

var _ Fetcher = (*YtDlp)(nil)

// NewYtDlp creates the fetcher. prober re-checks the downloaded file's
// duration and may be nil to skip that check.
func NewYtDlp(cfg Config, prober Prober, log *logger.Logger) *YtDlp {
	cfg.ApplyDefaults()
	log = logger.OrDefault(log).WithComponent("ytdlp")
	return &YtDlp{
		bin:         cfg.YtDlpPath,
		hosts:       NewHostPolicy(cfg.AllowedHosts),
		maxDuration: cfg.MaxDuration,
		timeout:     cfg.FetchTimeout,
		prober:      prober,
		runner:      process.NewRunner(process.Config{GracePeriod: cfg.GracePeriod}, log),
		log:         log,
	}
}

// Validate implements Fetcher.
func (y *YtDlp) Validate(rawURL string) error {
	_, err := y.hosts.Validate(rawURL)
	return err
}

type videoInfo struct {
	Title    string   `json:"title"`
	Duration *float64 `json:"duration"`
	IsLive   bool     `json:"is_live"`
}

// Fetch implements Fetcher. Metadata is read first so an over-long video is
// rejected before anything is downloaded.
func (y *YtDlp) Fetch(ctx context.Context, req FetchRequest) (string, error) {
	progress := newProgressSink(req.Progress)

	u, err := y.hosts.Validate(req.URL)
	if err != nil {
		return "", err
	}
	if req.Scope == nil {
		return "", apperrors.Internal(errors.New("fetch: scope is required"))
	}
	limit := y.maxDuration
	if req.MaxDuration > 0 {
		limit = req.MaxDuration
	}
	if y.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, y.timeout)
		defer cancel()
	}
	source := u.String()

	info, err := y.metadata(ctx, source)
	if err != nil {
		return "", err
	}
	if info.IsLive {
		return "", apperrors.Fetch("Live streams are not supported", nil)
	}
	if info.Duration != nil && limit > 0 {
		if d := secondsToDuration(*info.Duration); d > limit {
			return "", durationExceeded(d, limit)
		}
	}

	out := req.Scope.Acquire(".media")
	res, err := y.runner.Run(ctx, process.Command{
		Binary: y.bin,
		Args: []string{
			"--newline", "--no-part", "--no-playlist",
			"-f", "bestaudio/best",
			"-o", out.Path(),
			source,
		},
		OnStdoutLine: func(line string) {
			if pct, ok := parseProgress(line); ok {
				progress.send(ctx, pct/100)
			}
		},
	})
	if err != nil {
		return "", y.failure(ctx, "Download failed", res, err)
	}
	progress.send(ctx, 1)

	if y.prober != nil && limit > 0 {
		d, err := y.prober.Duration(ctx, out.Path())
		if err != nil {
			return "", apperrors.Fetch("Downloaded media is unreadable", err)
		}
		if d > limit {
			return "", durationExceeded(d, limit)
		}
	}
	y.log.Debug("fetched", logger.Fields(logger.FieldPath, out.Path(), "title", info.Title))
	return out.Path(), nil
}

func (y *YtDlp) metadata(ctx context.Context, source string) (*videoInfo, error) {
	res, err := y.runner.Run(ctx, process.Command{
		Binary: y.bin,
		Args:   []string{"-J", "--no-playlist", "--skip-download", source},
	})
	if err != nil {
		return nil, y.failure(ctx, "Could not read media information", res, err)
	}
	var info videoInfo
	if err := json.Unmarshal(res.Stdout, &info); err != nil {
		return nil, apperrors.Fetch("Could not read media information", err)
	}
	return &info, nil
}

func (y *YtDlp) failure(ctx context.Context, reason string, res *process.Result, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return apperrors.Fetch("Download timed out", ctxErr)
		}
		return ctxErr
	}
	if errors.Is(err, process.ErrBinaryNotFound) {
		return apperrors.Fetch(reason+": yt-dlp is not installed", err)
	}
	if tail := res.StderrTail(1); tail != "" {
		return apperrors.Fetch(reason+": "+tail, err)
	}
	return apperrors.Fetch(reason, err)
}

func durationExceeded(d, limit time.Duration) error {
	return apperrors.Fetch(
		fmt.Sprintf("Media is %s long; the limit is %s", d.Round(time.Second), limit),
		nil,
	).WithDetail("duration_seconds", int(d.Seconds()))
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

var progressLine = regexp.MustCompile(`^\[download\]\s+(\d+(?:\.\d+)?)%`)

// parseProgress extracts the percentage from a yt-dlp progress line.
func parseProgress(line string) (float64, bool) {
	m := progressLine.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return min(max(pct, 0), 100), true
}

// progressSink forwards only increasing values. yt-dlp restarts at 0% for
// each format it downloads, which would otherwise move progress backwards.
type progressSink struct {
	ch   chan<- float64
	last float64
	sent bool
}

func newProgressSink(ch chan<- float64) *progressSink {
	return &progressSink{ch: ch}
}

func (p *progressSink) send(ctx context.Context, frac float64) {
	if p.ch == nil || (p.sent && frac <= p.last) {
		return
	}
	select {
	case p.ch <- frac:
		p.last, p.sent = frac, true
	case <-ctx.Done():
	}
}
