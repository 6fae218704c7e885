// Package transcribe turns one normalized audio file into an ordered stream
// of transcript events: the noise profile and segments are computed once,
// then every segment is recognized on the worker pool and its result is
// yielded as soon as it and all earlier segments are done.
package transcribe

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/audioscribe/audio"
	"github.com/kbukum/audioscribe/denoise"
	apperrors "github.com/kbukum/audioscribe/errors"
	"github.com/kbukum/audioscribe/logger"
	"github.com/kbukum/audioscribe/observability"
	"github.com/kbukum/audioscribe/pipeline"
	"github.com/kbukum/audioscribe/transcription"
	"github.com/kbukum/audioscribe/vad"
	"github.com/kbukum/audioscribe/workerpool"
)

// Config configures a SegmentPipeline.
type Config struct {
	// SampleRate is the canonical rate of every input file.
	SampleRate int `yaml:"sample_rate" mapstructure:"sample_rate"`
	VAD        vad.Config `yaml:"vad" mapstructure:"vad"`
	// Lookahead is how many segments of one job may be in recognition at
	// once. Results are still yielded in segment order.
	Lookahead int `yaml:"lookahead" mapstructure:"lookahead" validate:"gte=0"`
	// Denoise is copied from the service's denoise section. Only the global
	// strategy acts here; per-segment reduction belongs to the recognizer.
	Denoise denoise.Config `yaml:"-" mapstructure:"-" validate:"-"`
}

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = audio.DefaultSampleRate
	}
	c.VAD.ApplyDefaults()
	c.Denoise.ApplyDefaults()
	if c.Lookahead <= 0 {
		c.Lookahead = 4
	}
}

// Job is one loaded input: the buffer, its noise reference and its segments.
// Under the global denoise strategy Buffer is already reduced.
type Job struct {
	Buffer   audio.Buffer
	Noise    audio.Buffer
	Segments []audio.Segment
}

// SegmentPipeline composes noise profiling, segmentation and recognition.
type SegmentPipeline struct {
	cfg        Config
	recognizer transcription.Recognizer
	pool       *workerpool.Pool
	segmenter  *vad.Segmenter
	profiler   *vad.NoiseProfiler
	reducer    *denoise.Reducer
	metrics    *observability.Metrics
	log        *logger.Logger
}

// New creates the pipeline. metrics may be nil.
func New(cfg Config, rec transcription.Recognizer, pool *workerpool.Pool, metrics *observability.Metrics, log *logger.Logger) *SegmentPipeline {
	cfg.ApplyDefaults()
	return &SegmentPipeline{
		cfg:        cfg,
		recognizer: rec,
		pool:       pool,
		segmenter:  vad.NewSegmenter(cfg.VAD.SegmentParams()),
		profiler:   vad.NewNoiseProfiler(cfg.VAD.NoiseParams(), cfg.VAD.NoiseMinDuration),
		reducer:    denoise.NewReducer(cfg.Denoise),
		metrics:    metrics,
		log:        logger.OrDefault(log).WithComponent("pipeline"),
	}
}

// SampleRate returns the canonical rate inputs must have.
func (p *SegmentPipeline) SampleRate() int { return p.cfg.SampleRate }

// Load reads a canonical WAV file and prepares it.
func (p *SegmentPipeline) Load(path string) (*Job, error) {
	buf, err := audio.Load(path, p.cfg.SampleRate)
	if err != nil {
		return nil, apperrors.Transcode("Converted audio could not be read", err)
	}
	return p.Prepare(buf), nil
}

// Prepare computes the noise profile and segments of buf. It never fails;
// a buffer without detected speech becomes one segment. With the global
// denoise strategy the noise profile comes from buf, and segments are cut
// from the reduced buffer.
func (p *SegmentPipeline) Prepare(buf audio.Buffer) *Job {
	noise := p.profiler.Extract(buf)
	if p.cfg.Denoise.Global() && noise.Len() > 0 {
		buf = audio.NewBuffer(p.reducer.Reduce(buf.Samples(), noise.Samples()), buf.SampleRate())
	}
	return &Job{
		Buffer:   buf,
		Noise:    noise,
		Segments: p.segmenter.Segment(buf),
	}
}

// Run loads path and streams its events. See Stream.
func (p *SegmentPipeline) Run(ctx context.Context, path string) (pipeline.Iterator[Event], error) {
	job, err := p.Load(path)
	if err != nil {
		return nil, err
	}
	return p.Stream(ctx, job), nil
}

// Stream recognizes job's segments and yields one text or segment error
// event per segment in segment order, then a complete status event. A failed
// segment does not stop the stream. The iterator yields ctx's error if ctx
// ends first, and is not restartable. Closing it cancels outstanding
// recognition.
func (p *SegmentPipeline) Stream(ctx context.Context, job *Job) pipeline.Iterator[Event] {
	indices := make([]int, len(job.Segments))
	for i := range indices {
		indices[i] = i
	}
	results := pipeline.Ordered(pipeline.FromSlice(indices), p.cfg.Lookahead,
		func(ctx context.Context, i int) (Event, error) {
			return p.recognize(ctx, job, i)
		})
	return pipeline.Concat(results, pipeline.Of(StatusEvent(StatusComplete))).Iter(ctx)
}

func (p *SegmentPipeline) recognize(ctx context.Context, job *Job, i int) (Event, error) {
	seg := job.Segments[i]
	ctx, span := observability.StartSpan(ctx, observability.SpanSegment,
		attribute.Int(observability.AttrSegment, i),
		attribute.Int("segment.samples", seg.Len()),
	)
	start := time.Now()
	text, err := workerpool.Submit(ctx, p.pool, func(ctx context.Context) (string, error) {
		return p.recognizer.Recognize(ctx, job.Buffer.Slice(seg), job.Noise)
	}).Await(ctx)
	elapsed := time.Since(start)
	p.metrics.RecordSegment(ctx, elapsed, err)
	observability.EndSpan(span, err)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Event{}, ctxErr
		}
		if errors.Is(err, workerpool.ErrPoolClosed) {
			return Event{}, apperrors.ServiceUnavailable("worker pool").WithCause(err)
		}
		fields := logger.SegmentFields(i, elapsed)
		fields[logger.FieldError] = err.Error()
		p.log.Warn("segment recognition failed", fields)
		return SegmentErrorEvent(i, apperrors.SegmentRecognition(i, err)), nil
	}
	p.log.Debug("segment recognized", logger.SegmentFields(i, elapsed))
	return TextEvent(i, text), nil
}
