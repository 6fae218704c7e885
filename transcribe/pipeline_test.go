package transcribe

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kbukum/audioscribe/audio"
	"github.com/kbukum/audioscribe/denoise"
	apperrors "github.com/kbukum/audioscribe/errors"
	"github.com/kbukum/audioscribe/logger"
	"github.com/kbukum/audioscribe/pipeline"
	"github.com/kbukum/audioscribe/testutil"
	"github.com/kbukum/audioscribe/transcription"
	"github.com/kbukum/audioscribe/vad"
	"github.com/kbukum/audioscribe/workerpool"
)

const rate = audio.DefaultSampleRate

func startPool(t *testing.T, workers int) *workerpool.Pool {
	t.Helper()
	p := workerpool.New(workerpool.Config{Workers: workers, QueueSize: 16}, logger.Nop())
	testutil.Start(t, p)
	return p
}

// indexedJob builds n segments of 100 samples each; every sample of segment
// i holds the value i so a recognizer can tell segments apart.
func indexedJob(n int) *Job {
	samples := make([]float32, n*100)
	segs := make([]audio.Segment, n)
	for i := range segs {
		segs[i] = audio.Segment{Start: i * 100, End: (i + 1) * 100}
		for j := segs[i].Start; j < segs[i].End; j++ {
			samples[j] = float32(i)
		}
	}
	return &Job{
		Buffer:   audio.NewBuffer(samples, rate),
		Noise:    audio.NewBuffer(make([]float32, 10), rate),
		Segments: segs,
	}
}

func segmentIndex(b audio.Buffer) int { return int(b.Samples()[0]) }

func collectEvents(t *testing.T, it pipeline.Iterator[Event]) []Event {
	t.Helper()
	defer it.Close()
	var events []Event
	for {
		e, ok, err := it.Next(context.Background())
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			return events
		}
		events = append(events, e)
	}
}

func newPipeline(t *testing.T, rec transcription.Recognizer, lookahead int) *SegmentPipeline {
	t.Helper()
	return New(Config{Lookahead: lookahead}, rec, startPool(t, 4), nil, logger.Nop())
}

func TestStream_OrderedUnderVariableDelay(t *testing.T) {
	const n = 8
	rec := transcription.RecognizerFunc(func(ctx context.Context, seg, _ audio.Buffer) (string, error) {
		i := segmentIndex(seg)
		// Earlier segments finish last.
		time.Sleep(time.Duration(n-i) * 5 * time.Millisecond)
		return fmt.Sprintf("seg%d", i), nil
	})
	p := newPipeline(t, rec, 4)

	events := collectEvents(t, p.Stream(context.Background(), indexedJob(n)))
	if len(events) != n+1 {
		t.Fatalf("expected %d events, got %d", n+1, len(events))
	}
	for i := 0; i < n; i++ {
		e := events[i]
		if e.Kind != KindText || e.Text != fmt.Sprintf("seg%d", i) || e.Segment != i {
			t.Fatalf("event %d: got %+v", i, e)
		}
	}
	if !events[n].IsComplete() {
		t.Fatalf("expected complete last, got %+v", events[n])
	}
}

func TestStream_PartialFailure(t *testing.T) {
	rec := transcription.RecognizerFunc(func(_ context.Context, seg, _ audio.Buffer) (string, error) {
		i := segmentIndex(seg)
		if i == 1 {
			return "", apperrors.ServiceUnavailable("whisper recognizer")
		}
		return fmt.Sprintf("seg%d", i), nil
	})
	p := newPipeline(t, rec, 2)

	events := collectEvents(t, p.Stream(context.Background(), indexedJob(3)))
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %+v", events)
	}
	if events[0].Kind != KindText || events[0].Text != "seg0" {
		t.Errorf("event 0: %+v", events[0])
	}
	if events[1].Kind != KindError || events[1].Segment != 1 {
		t.Errorf("event 1: %+v", events[1])
	}
	if !apperrors.IsCode(events[1].Err, apperrors.ErrCodeSegmentRecognition) {
		t.Errorf("expected SEGMENT_RECOGNITION_ERROR, got %v", events[1].Err)
	}
	if events[2].Kind != KindText || events[2].Text != "seg2" {
		t.Errorf("event 2: %+v", events[2])
	}
	if !events[3].IsComplete() {
		t.Errorf("event 3: %+v", events[3])
	}
}

func TestStream_FirstResultBeforeLastFinishes(t *testing.T) {
	release := make(chan struct{})
	rec := transcription.RecognizerFunc(func(ctx context.Context, seg, _ audio.Buffer) (string, error) {
		if segmentIndex(seg) == 2 {
			select {
			case <-release:
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		return "ok", nil
	})
	p := newPipeline(t, rec, 3)
	it := p.Stream(context.Background(), indexedJob(3))
	defer it.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := 0; i < 2; i++ {
		e, ok, err := it.Next(ctx)
		if err != nil || !ok || e.Segment != i {
			t.Fatalf("expected segment %d before the last finishes, got %+v %v %v", i, e, ok, err)
		}
	}
	close(release)
	if e, ok, err := it.Next(ctx); err != nil || !ok || e.Segment != 2 {
		t.Fatalf("expected segment 2, got %+v %v %v", e, ok, err)
	}
}

func TestStream_LookaheadBoundsInFlight(t *testing.T) {
	var inFlight, peak atomic.Int32
	rec := transcription.RecognizerFunc(func(context.Context, audio.Buffer, audio.Buffer) (string, error) {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return "x", nil
	})
	p := newPipeline(t, rec, 2)

	collectEvents(t, p.Stream(context.Background(), indexedJob(10)))
	if got := peak.Load(); got > 2 {
		t.Fatalf("expected at most 2 concurrent recognitions, got %d", got)
	}
}

func TestStream_CancelStopsRecognition(t *testing.T) {
	var calls atomic.Int32
	rec := transcription.RecognizerFunc(func(ctx context.Context, seg, _ audio.Buffer) (string, error) {
		calls.Add(1)
		if segmentIndex(seg) == 0 {
			return "seg0", nil
		}
		<-ctx.Done()
		return "", ctx.Err()
	})
	p := newPipeline(t, rec, 2)

	ctx, cancel := context.WithCancel(context.Background())
	it := p.Stream(ctx, indexedJob(20))
	if e, ok, err := it.Next(ctx); err != nil || !ok || e.Text != "seg0" {
		t.Fatalf("expected seg0, got %+v %v %v", e, ok, err)
	}
	cancel()
	if _, _, err := it.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	_ = it.Close()
	if got := calls.Load(); got > 4 {
		t.Fatalf("expected recognition to stop after cancel, got %d calls", got)
	}
}

func TestStream_NoSegments(t *testing.T) {
	p := newPipeline(t, transcription.RecognizerFunc(func(context.Context, audio.Buffer, audio.Buffer) (string, error) {
		t.Error("recognizer must not be called")
		return "", nil
	}), 1)
	events := collectEvents(t, p.Stream(context.Background(), &Job{}))
	if len(events) != 1 || !events[0].IsComplete() {
		t.Fatalf("expected only complete, got %+v", events)
	}
}

func TestStream_PoolClosedAbortsJob(t *testing.T) {
	pool := workerpool.New(workerpool.Config{Workers: 1}, logger.Nop())
	_ = pool.Stop(context.Background())
	p := New(Config{}, transcription.RecognizerFunc(func(context.Context, audio.Buffer, audio.Buffer) (string, error) {
		return "x", nil
	}), pool, nil, logger.Nop())

	it := p.Stream(context.Background(), indexedJob(2))
	defer it.Close()
	_, _, err := it.Next(context.Background())
	if !apperrors.IsCode(err, apperrors.ErrCodeServiceUnavailable) {
		t.Fatalf("expected SERVICE_UNAVAILABLE, got %v", err)
	}
}

func TestRun_EndToEnd(t *testing.T) {
	path, _ := testutil.SpeechWithPause(t)

	var noiseLen atomic.Int32
	rec := transcription.RecognizerFunc(func(_ context.Context, seg, noise audio.Buffer) (string, error) {
		noiseLen.Store(int32(noise.Len()))
		switch seg.Len() {
		case 4 * rate:
			return "seg0", nil
		case 5 * rate:
			return "seg1", nil
		}
		return "", fmt.Errorf("unexpected segment of %d samples", seg.Len())
	})
	p := newPipeline(t, rec, 2)

	it, err := p.Run(context.Background(), path)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	events := collectEvents(t, it)

	var got []string
	for _, e := range events {
		switch e.Kind {
		case KindText:
			got = append(got, "text:"+e.Text)
		case KindStatus:
			got = append(got, "status:"+e.Status)
		default:
			got = append(got, "error:"+e.Message())
		}
	}
	want := []string{"text:seg0", "text:seg1", "status:complete"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if noiseLen.Load() != rate/2 {
		t.Errorf("expected a 0.5s noise profile, got %d samples", noiseLen.Load())
	}
}

func TestLoad_Unreadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := os.WriteFile(path, []byte("definitely not audio"), 0o600); err != nil {
		t.Fatal(err)
	}
	p := newPipeline(t, nil, 1)
	if _, err := p.Load(path); !apperrors.IsCode(err, apperrors.ErrCodeTranscode) {
		t.Fatalf("expected TRANSCODE_ERROR, got %v", err)
	}
}

func TestPrepare_AllSilence(t *testing.T) {
	p := newPipeline(t, nil, 1)
	job := p.Prepare(audio.NewBuffer(make([]float32, 2*rate), rate))
	if len(job.Segments) != 1 || job.Segments[0] != (audio.Segment{Start: 0, End: 2 * rate}) {
		t.Fatalf("expected one whole-buffer segment, got %v", job.Segments)
	}
	if job.Noise.Len() != rate/2 {
		t.Fatalf("expected 0.5s noise profile, got %d", job.Noise.Len())
	}
}

func TestPrepare_DenoiseStrategy(t *testing.T) {
	// Loud stationary noise around one square-wave burst.
	x := make([]float32, 3*rate)
	r := rand.New(rand.NewPCG(7, 11))
	for i := range x {
		x[i] = 0.2 * (2*r.Float32() - 1)
	}
	for i := rate; i < 2*rate; i++ {
		if (i/20)%2 == 0 {
			x[i] += 0.5
		} else {
			x[i] -= 0.5
		}
	}
	in := audio.NewBuffer(x, rate)

	tests := []struct {
		name     string
		strategy string
		reduced  bool
	}{
		{"global", denoise.StrategyGlobal, true},
		{"per segment", denoise.StrategyPerSegment, false},
		{"none", denoise.StrategyNone, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Denoise: denoise.Config{Strategy: tt.strategy}}
			p := New(cfg, nil, startPool(t, 1), nil, logger.Nop())
			job := p.Prepare(in)
			if job.Noise.Len() == 0 {
				t.Fatal("expected a noise profile")
			}

			cfg.ApplyDefaults()
			want := in
			if tt.reduced {
				want = audio.NewBuffer(denoise.NewReducer(cfg.Denoise).Reduce(x, job.Noise.Samples()), rate)
			}
			if !reflect.DeepEqual(job.Buffer.Samples(), want.Samples()) {
				t.Fatal("job buffer is not the expected signal")
			}
			if same := &job.Buffer.Samples()[0] == &x[0]; same == tt.reduced {
				t.Errorf("job buffer shares input storage = %v", same)
			}
			segs := vad.NewSegmenter(cfg.VAD.SegmentParams()).Segment(want)
			if !reflect.DeepEqual(job.Segments, segs) {
				t.Errorf("segments %v, want boundaries of the job buffer %v", job.Segments, segs)
			}
		})
	}
}
