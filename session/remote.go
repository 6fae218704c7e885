package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/kbukum/audioscribe/errors"
	"github.com/kbukum/audioscribe/media"
	"github.com/kbukum/audioscribe/observability"
	"github.com/kbukum/audioscribe/pipeline"
	"github.com/kbukum/audioscribe/transcribe"
	"github.com/kbukum/audioscribe/validation"
	"github.com/kbukum/audioscribe/workerpool"
)

type urlRequest struct {
	URL string `json:"url" validate:"required,max=2048"`
}

// ServeURL runs one remote job: it reads a {"url"} message, downloads the
// media while reporting progress, transcodes it and streams the transcript.
// The caller closes the connection when ServeURL returns.
func (o *Orchestrator) ServeURL(ctx context.Context, conn Conn) error {
	ctx, r, write, cancel := serve(ctx, conn)
	defer cancel(nil)
	emit := func(e transcribe.Event) error { return write(e) }

	msg, err := r.next(ctx)
	if err != nil {
		return o.ended(err)
	}
	err = o.urlJob(ctx, msg, emit)
	if cause := context.Cause(ctx); cause != nil {
		return o.ended(cause)
	}
	if appErr, ok := apperrors.AsAppError(err); ok && apperrors.EndsSession(appErr.Code) {
		return err
	}
	return nil
}

func (o *Orchestrator) urlJob(ctx context.Context, msg inbound, emit emitFunc) error {
	ctx, j := o.newJob(ctx, KindURL, emit)

	if msg.typ != TextMessage {
		return j.fail(ctx, apperrors.Protocol("expected a JSON message with a url"))
	}
	var req urlRequest
	if err := json.Unmarshal(msg.data, &req); err != nil {
		return j.fail(ctx, apperrors.Protocol("malformed JSON message"))
	}
	if err := j.to(StateIngesting); err != nil {
		return j.fail(ctx, err)
	}
	if err := validation.Validate(req); err != nil {
		return j.fail(ctx, apperrors.InvalidSource(req.URL, "url is required").WithCause(err))
	}
	if err := o.deps.Fetcher.Validate(req.URL); err != nil {
		return j.fail(ctx, err)
	}
	if err := j.to(StateTranscoding); err != nil {
		return j.fail(ctx, err)
	}

	if err := j.emit(transcribe.StatusEvent(transcribe.StatusDownloading)); err != nil {
		return j.fail(ctx, err)
	}
	fetched, err := o.fetch(ctx, j, req.URL)
	if err != nil {
		return j.fail(ctx, err)
	}

	if err := j.emit(transcribe.StatusEvent(transcribe.StatusConverting)); err != nil {
		return j.fail(ctx, err)
	}
	wav, err := o.normalize(ctx, j, fetched)
	if err != nil {
		return j.fail(ctx, err)
	}
	return o.recognize(ctx, j, wav)
}

// fetch downloads rawURL on the worker pool. Progress travels from the
// worker over a channel and is written by this goroutine only, throttled to
// the configured interval.
func (o *Orchestrator) fetch(ctx context.Context, j *job, rawURL string) (string, error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanStage, attribute.String(observability.AttrStage, "fetch"))
	start := time.Now()

	progress := make(chan float64)
	fut := workerpool.Submit(ctx, o.deps.Pool, func(ctx context.Context) (string, error) {
		return o.deps.Fetcher.Fetch(ctx, media.FetchRequest{
			URL:         rawURL,
			MaxDuration: o.cfg.MaxDuration,
			Scope:       j.scope,
			Progress:    progress,
		})
	})
	go func() {
		// Resolution happens after Fetch returns or instead of running it,
		// so nothing sends after the close.
		<-fut.Done()
		close(progress)
	}()

	path, err := o.relayProgress(ctx, j, progress, fut)
	if err != nil && ctx.Err() != nil {
		// yt-dlp may still be writing into the job's scope.
		<-fut.Done()
	}
	if errors.Is(err, workerpool.ErrPoolClosed) {
		err = apperrors.ServiceUnavailable("worker pool").WithCause(err)
	}
	o.deps.Metrics.RecordStage(ctx, "fetch", time.Since(start), err)
	observability.EndSpan(span, err)
	return path, err
}

func (o *Orchestrator) relayProgress(ctx context.Context, j *job, progress <-chan float64, fut *workerpool.Future[string]) (string, error) {
	percent := pipeline.Map(pipeline.Throttle(pipeline.FromChannel(progress), o.cfg.ProgressInterval),
		func(_ context.Context, frac float64) (transcribe.Event, error) {
			return transcribe.ProgressEvent(frac * 100), nil
		})
	var emitErr error
	err := pipeline.ForEach(ctx, percent, func(_ context.Context, e transcribe.Event) error {
		emitErr = j.emit(e)
		return emitErr
	})
	if emitErr != nil {
		return "", emitErr
	}
	if err != nil {
		return "", context.Cause(ctx)
	}
	return fut.Await(ctx)
}
