// Package audio holds the canonical in-memory audio representation: mono
// float32 PCM at a fixed sample rate, plus WAV decoding and encoding.
package audio

import (
	"fmt"
	"time"
)

// DefaultSampleRate is the canonical sample rate every stage after
// transcoding expects.
const DefaultSampleRate = 16000

// Buffer is an immutable mono PCM buffer with samples in [-1, 1].
// Slices share memory with the parent; callers must not modify the samples.
type Buffer struct {
	samples []float32
	rate    int
}

// NewBuffer wraps samples recorded at rate. The slice is not copied.
func NewBuffer(samples []float32, rate int) Buffer {
	return Buffer{samples: samples, rate: rate}
}

// Samples returns the underlying samples. Treat the result as read-only.
func (b Buffer) Samples() []float32 { return b.samples }

// Len returns the number of samples.
func (b Buffer) Len() int { return len(b.samples) }

// SampleRate returns the sample rate in Hz.
func (b Buffer) SampleRate() int { return b.rate }

// Channels is always 1 for a normalized buffer.
func (b Buffer) Channels() int { return 1 }

// Duration returns the playback length.
func (b Buffer) Duration() time.Duration {
	if b.rate <= 0 {
		return 0
	}
	return time.Duration(len(b.samples)) * time.Second / time.Duration(b.rate)
}

// SamplesFor converts a duration to a sample count at the buffer's rate.
func (b Buffer) SamplesFor(d time.Duration) int {
	return int(d.Seconds() * float64(b.rate))
}

// Slice returns the samples covered by seg. seg must be within bounds.
func (b Buffer) Slice(seg Segment) Buffer {
	return Buffer{samples: b.samples[seg.Start:seg.End], rate: b.rate}
}

// Segment is a half-open sample range [Start, End) into a job's buffer.
type Segment struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of samples in the segment.
func (s Segment) Len() int { return s.End - s.Start }

// Valid reports whether the segment is non-empty and within a buffer of length n.
func (s Segment) Valid(n int) bool {
	return s.Start >= 0 && s.End > s.Start && s.End <= n
}

// Span returns the segment's start and end offsets at rate.
func (s Segment) Span(rate int) (start, end time.Duration) {
	if rate <= 0 {
		return 0, 0
	}
	toDur := func(n int) time.Duration {
		return time.Duration(n) * time.Second / time.Duration(rate)
	}
	return toDur(s.Start), toDur(s.End)
}

func (s Segment) String() string {
	return fmt.Sprintf("[%d,%d)", s.Start, s.End)
}
