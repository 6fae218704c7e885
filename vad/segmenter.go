package vad

import (
	"time"

	"github.com/kbukum/audioscribe/audio"
)

// Segmenter splits a buffer into its active intervals.
type Segmenter struct {
	params Params
}

// NewSegmenter creates a segmenter with fixed framing constants.
func NewSegmenter(p Params) *Segmenter {
	return &Segmenter{params: p.withDefaults()}
}

// Segment returns every active interval of b, in order. A buffer with no
// active interval yields one segment covering the whole buffer; an empty
// buffer yields none.
func (s *Segmenter) Segment(b audio.Buffer) []audio.Segment {
	if b.Len() == 0 {
		return nil
	}
	segs := Detect(b, s.params)
	if len(segs) == 0 {
		return []audio.Segment{{Start: 0, End: b.Len()}}
	}
	return segs
}

// NoiseProfiler extracts a background-noise reference from a buffer.
type NoiseProfiler struct {
	params      Params
	minDuration time.Duration
}

// NewNoiseProfiler creates a profiler. minDuration is the shortest profile
// returned whenever the buffer is long enough.
func NewNoiseProfiler(p Params, minDuration time.Duration) *NoiseProfiler {
	if minDuration <= 0 {
		minDuration = 500 * time.Millisecond
	}
	return &NoiseProfiler{params: p.withDefaults(), minDuration: minDuration}
}

// Extract returns the audio before the first active interval. When that
// leading audio is shorter than the minimum duration, or there is no active
// interval, the first minimum-duration window of b is returned instead.
// The result is never shorter than min(minDuration*rate, b.Len()).
func (n *NoiseProfiler) Extract(b audio.Buffer) audio.Buffer {
	want := min(b.SamplesFor(n.minDuration), b.Len())
	fallback := b.Slice(audio.Segment{Start: 0, End: want})

	segs := Detect(b, n.params)
	if len(segs) == 0 {
		return fallback
	}
	lead := segs[0].Start
	if lead < want {
		return fallback
	}
	return b.Slice(audio.Segment{Start: 0, End: lead})
}
