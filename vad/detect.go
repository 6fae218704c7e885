// Package vad finds active (non-silent) intervals in normalized audio using
// frame energy relative to the loudest frame, and derives the two products
// the recognition stage needs: the job's segments and its noise profile.
package vad

import (
	"math"

	"github.com/kbukum/audioscribe/audio"
)

// amin is the power floor used when converting to decibels.
const amin = 1e-10

// Params are the fixed framing constants of the detector.
type Params struct {
	// FrameLength is the analysis window in samples.
	FrameLength int `yaml:"frame_length" mapstructure:"frame_length" validate:"gt=0"`
	// HopLength is the distance between frame centers in samples.
	HopLength int `yaml:"hop_length" mapstructure:"hop_length" validate:"gt=0"`
	// TopDB is the threshold in decibels below the loudest frame under
	// which a frame counts as silent.
	TopDB float64 `yaml:"top_db" mapstructure:"top_db" validate:"gt=0"`
}

func (p Params) withDefaults() Params {
	if p.FrameLength <= 0 {
		p.FrameLength = 2048
	}
	if p.HopLength <= 0 {
		p.HopLength = 512
	}
	if p.TopDB <= 0 {
		p.TopDB = 25
	}
	return p
}

// Detect returns the active intervals of b in chronological order.
//
// Frames are centered every HopLength samples with zero padding at both
// ends. A frame is active when its mean power is within TopDB of the
// loudest frame. Runs of active frames become intervals; each interval's
// edges are then tightened to the outermost samples whose amplitude clears
// the same threshold, so boundaries fall on the signal rather than on the
// frame grid. Intervals never overlap, are never empty and are clipped to
// the buffer.
func Detect(b audio.Buffer, p Params) []audio.Segment {
	p = p.withDefaults()
	x := b.Samples()
	if len(x) == 0 {
		return nil
	}

	power := framePower(x, p.FrameLength, p.HopLength)
	peak := 0.0
	for _, v := range power {
		peak = math.Max(peak, v)
	}
	refDB := 10 * math.Log10(math.Max(amin, peak))
	active := make([]bool, len(power))
	for i, v := range power {
		active[i] = 10*math.Log10(math.Max(amin, v))-refDB > -p.TopDB
	}

	// Linear amplitude a single sample must exceed to lie inside an interval.
	ampThreshold := math.Sqrt(math.Max(amin, peak) * math.Pow(10, -p.TopDB/10))

	var out []audio.Segment
	for i := 0; i < len(active); {
		if !active[i] {
			i++
			continue
		}
		j := i
		for j < len(active) && active[j] {
			j++
		}
		seg := audio.Segment{
			Start: min(i*p.HopLength, len(x)),
			End:   min(j*p.HopLength, len(x)),
		}
		if j == len(active) {
			seg.End = len(x)
		}
		seg = tighten(x, seg, ampThreshold)
		if seg.Len() > 0 {
			out = append(out, seg)
		}
		i = j
	}
	return out
}

// resync is how many frames the running sum may slide before it is
// recomputed from the samples, which bounds floating-point drift.
const resync = 64

// framePower computes the mean power of centered, zero-padded frames.
// The frame count is 1 + len(x)/hop. A running sum of squares slides with
// the frames, so memory stays proportional to the frame count.
func framePower(x []float32, frame, hop int) []float64 {
	n := 1 + len(x)/hop
	half := frame / 2

	power := make([]float64, n)
	var sum float64
	lo, hi := 0, 0
	for t := 0; t < n; t++ {
		nlo := max(0, t*hop-half)
		nhi := min(len(x), t*hop-half+frame)
		if t%resync == 0 || nlo >= hi {
			sum = sumSquares(x[nlo:nhi])
		} else {
			sum += sumSquares(x[hi:nhi]) - sumSquares(x[lo:nlo])
		}
		lo, hi = nlo, nhi
		if hi > lo {
			power[t] = max(0, sum) / float64(frame)
		}
	}
	return power
}

func sumSquares(x []float32) float64 {
	var s float64
	for _, v := range x {
		s += float64(v) * float64(v)
	}
	return s
}

// tighten shrinks seg to the first and last samples above threshold.
// If no sample qualifies the frame-level bounds are kept.
func tighten(x []float32, seg audio.Segment, threshold float64) audio.Segment {
	start, end := seg.Start, seg.End
	for start < end && math.Abs(float64(x[start])) <= threshold {
		start++
	}
	for end > start && math.Abs(float64(x[end-1])) <= threshold {
		end--
	}
	if start >= end {
		return seg
	}
	return audio.Segment{Start: start, End: end}
}
