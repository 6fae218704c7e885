// Package session drives client jobs through ingest, normalization,
// segmentation and recognition. It owns each job's state machine, its
// temporary files and the order of the events written to the client.
//
// Two connection protocols are served: an upload loop that accepts any
// number of {filename} + binary jobs, and a one-shot remote URL job. A
// request/response form for single files is provided by TranscribeFile.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/audioscribe/audio"
	apperrors "github.com/kbukum/audioscribe/errors"
	"github.com/kbukum/audioscribe/logger"
	"github.com/kbukum/audioscribe/media"
	"github.com/kbukum/audioscribe/observability"
	"github.com/kbukum/audioscribe/tempres"
	"github.com/kbukum/audioscribe/transcribe"
	"github.com/kbukum/audioscribe/workerpool"
)

// Session kinds.
const (
	KindUpload = "upload"
	KindURL    = "url"
	KindSingle = "single"
)

// Deps are the collaborators an Orchestrator drives.
type Deps struct {
	Temp       *tempres.Manager
	Transcoder media.Transcoder
	Fetcher    media.Fetcher
	Pipeline   *transcribe.SegmentPipeline
	Pool       *workerpool.Pool
	// Metrics may be nil.
	Metrics *observability.Metrics
}

// Orchestrator runs jobs for any number of concurrent sessions. It holds no
// per-session state.
type Orchestrator struct {
	cfg  Config
	deps Deps
	log  *logger.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg Config, deps Deps, log *logger.Logger) *Orchestrator {
	cfg.ApplyDefaults()
	return &Orchestrator{cfg: cfg, deps: deps, log: logger.OrDefault(log).WithComponent("session")}
}

// MaxUploadBytes is the largest file a session accepts.
func (o *Orchestrator) MaxUploadBytes() int64 { return o.cfg.MaxUploadBytes }

// emitFunc delivers one stamped event to the client.
type emitFunc func(transcribe.Event) error

// job is one unit of work. It is confined to its session goroutine.
type job struct {
	id    string
	kind  string
	state State
	scope *tempres.Scope
	seq   transcribe.Sequencer
	log   *logger.Logger
	obs   *observability.Job
	emit  emitFunc
}

func (o *Orchestrator) newJob(ctx context.Context, kind string, emit emitFunc) (context.Context, *job) {
	id := uuid.NewString()
	ctx, obs := o.deps.Metrics.StartJob(ctx, kind, id)
	j := &job{
		id:    id,
		kind:  kind,
		state: StateIdle,
		scope: o.deps.Temp.NewScope(),
		log:   o.log.WithJob(id, kind),
		obs:   obs,
	}
	j.emit = func(e transcribe.Event) error {
		if emit == nil {
			return nil
		}
		return emit(j.seq.Stamp(e))
	}
	return ctx, j
}

// to moves the job to next. Invalid edges are programming errors and fail
// the job.
func (j *job) to(next State) error {
	if !CanTransition(j.state, next) {
		return apperrors.Internal(errors.New("session: invalid transition " + j.state.String() + " -> " + next.String()))
	}
	j.log.Debug("state changed", logger.Fields("from", j.state.String(), logger.FieldState, next.String()))
	j.state = next
	return nil
}

// release removes every temporary file the job created. Failures are logged
// and never reach the client.
func (j *job) release() {
	if err := j.scope.Release(); err != nil {
		j.log.Warn("temporary resource cleanup failed", logger.Fields(logger.FieldError, err.Error()))
	}
}

// complete releases the job's files, then marks it complete and sends the
// final status event.
func (j *job) complete(ctx context.Context, final transcribe.Event) error {
	j.release()
	if err := j.to(StateComplete); err != nil {
		return j.fail(ctx, err)
	}
	j.obs.End(ctx, observability.OutcomeComplete, nil)
	err := j.emit(final)
	j.log.Info("job complete", logger.Fields("events", j.seq.Next()))
	return err
}

// fail releases the job's files, marks it failed and reports cause to the
// client unless the client is gone. It returns cause, or the write error if
// the report could not be delivered.
func (j *job) fail(ctx context.Context, cause error) error {
	j.release()
	if !j.state.Terminal() {
		j.state = StateFailed
	}
	if ctxErr := context.Cause(ctx); ctxErr != nil {
		j.obs.End(ctx, observability.OutcomeCancelled, ctxErr)
		j.log.Info("job cancelled", logger.Fields(logger.FieldError, ctxErr.Error()))
		return ctxErr
	}
	j.obs.End(ctx, observability.OutcomeFailed, cause)
	j.log.Warn("job failed", logger.Fields(logger.FieldError, cause.Error()))
	if err := j.emit(transcribe.ErrorEvent(cause)); err != nil {
		return err
	}
	return cause
}

// stage runs fn on the worker pool inside a span and records its duration.
func stage[T any](ctx context.Context, o *Orchestrator, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanStage, attribute.String(observability.AttrStage, name))
	start := time.Now()
	f := workerpool.Submit(ctx, o.deps.Pool, fn)
	v, err := f.Await(ctx)
	if err != nil && ctx.Err() != nil {
		// The task may still be writing into the job's scope.
		<-f.Done()
	}
	o.deps.Metrics.RecordStage(ctx, name, time.Since(start), err)
	observability.EndSpan(span, err)
	if errors.Is(err, workerpool.ErrPoolClosed) {
		err = apperrors.ServiceUnavailable("worker pool").WithCause(err)
	}
	return v, err
}

// normalize makes inputPath canonical. A file that already is canonical is
// used as is; anything else is transcoded into a new temporary file. A job
// that is already transcoding (a fetched URL) stays in that state.
func (o *Orchestrator) normalize(ctx context.Context, j *job, inputPath string) (string, error) {
	rate := o.deps.Pipeline.SampleRate()
	if audio.IsCanonical(inputPath, rate) {
		j.log.Debug("input already canonical", logger.Fields(logger.FieldPath, inputPath))
		return inputPath, nil
	}
	if j.state != StateTranscoding {
		if err := j.to(StateTranscoding); err != nil {
			return "", err
		}
	}
	out := j.scope.Acquire(".wav")
	_, err := stage(ctx, o, "transcode", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.deps.Transcoder.Transcode(ctx, inputPath, out.Path(), rate)
	})
	if err != nil {
		return "", err
	}
	return out.Path(), nil
}

// recognize loads the canonical file, streams every segment event and
// finishes the job. Segment failures are reported and skipped.
func (o *Orchestrator) recognize(ctx context.Context, j *job, wavPath string) error {
	if err := j.to(StateProfilingAndSegmenting); err != nil {
		return j.fail(ctx, err)
	}
	prepared, err := stage(ctx, o, "segment", func(context.Context) (*transcribe.Job, error) {
		return o.deps.Pipeline.Load(wavPath)
	})
	if err != nil {
		return j.fail(ctx, err)
	}
	j.log.Debug("segmented", logger.Fields("segments", len(prepared.Segments), "audio_ms", prepared.Buffer.Duration().Milliseconds()))

	if err := j.to(StateRecognizing); err != nil {
		return j.fail(ctx, err)
	}
	it := o.deps.Pipeline.Stream(ctx, prepared)
	defer it.Close()
	for {
		e, ok, err := it.Next(ctx)
		if err != nil {
			return j.fail(ctx, err)
		}
		if !ok {
			return j.fail(ctx, apperrors.Internal(errors.New("session: stream ended without completion")))
		}
		if e.IsComplete() {
			return j.complete(ctx, e)
		}
		if err := j.emit(e); err != nil {
			return j.fail(ctx, err)
		}
	}
}
