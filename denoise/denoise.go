// Package denoise implements stationary spectral gating: a per-frequency
// threshold is learned from a noise reference and every time-frequency
// bin of the signal that does not clear it is attenuated.
package denoise

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Strategies for applying noise reduction to a job.
const (
	StrategyPerSegment = "per_segment"
	StrategyGlobal     = "global"
	StrategyNone       = "none"
)

// Config controls noise reduction.
type Config struct {
	Strategy string `yaml:"strategy" mapstructure:"strategy" validate:"oneof=per_segment global none"`
	// Strength is the proportion by which gated bins are reduced (0..1).
	Strength float64 `yaml:"strength" mapstructure:"strength" validate:"gte=0,lte=1"`
	// FFTSize is the STFT window in samples; it must be even.
	FFTSize int `yaml:"fft_size" mapstructure:"fft_size" validate:"gte=64"`
	// Threshold is the number of noise standard deviations above the noise
	// mean a bin must reach to pass the gate.
	Threshold float64 `yaml:"threshold" mapstructure:"threshold" validate:"gte=0"`
}

// ApplyDefaults fills zero fields.
func (c *Config) ApplyDefaults() {
	if c.Strategy == "" {
		c.Strategy = StrategyPerSegment
	}
	if c.Strength == 0 {
		c.Strength = 0.9
	}
	if c.FFTSize <= 0 {
		c.FFTSize = 1024
	}
	if c.Threshold == 0 {
		c.Threshold = 1.5
	}
}

// Enabled reports whether noise reduction runs at all.
func (c Config) Enabled() bool { return c.Strategy != StrategyNone }

// PerSegment reports whether each segment is reduced on its own. Under
// StrategyGlobal the whole buffer is reduced once, before segmentation.
func (c Config) PerSegment() bool { return c.Strategy == StrategyPerSegment }

// Global reports whether the whole buffer is reduced before segmentation.
func (c Config) Global() bool { return c.Strategy == StrategyGlobal }

const magFloor = 1e-10

// Reducer applies spectral gating. It is safe for concurrent use.
type Reducer struct {
	strength  float64
	threshold float64
	n         int
	hop       int
	window    []float64
}

// NewReducer builds a reducer from cfg. Zero fields take their defaults.
func NewReducer(cfg Config) *Reducer {
	cfg.ApplyDefaults()
	n := cfg.FFTSize + cfg.FFTSize%2
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return &Reducer{
		strength:  math.Min(1, math.Max(0, cfg.Strength)),
		threshold: cfg.Threshold,
		n:         n,
		hop:       n / 4,
		window:    w,
	}
}

// Reduce returns a denoised copy of samples using noise as the stationary
// reference. An empty reference leaves the signal untouched.
func (r *Reducer) Reduce(samples, noise []float32) []float32 {
	out := make([]float32, len(samples))
	if len(samples) == 0 {
		return out
	}
	if len(noise) == 0 || r.strength == 0 {
		copy(out, samples)
		return out
	}

	fft := fourier.NewFFT(r.n)
	thresh := r.noiseThreshold(fft, noise)

	spectra := r.stft(fft, samples)
	mask := make([][]float64, len(spectra))
	for t, frame := range spectra {
		mask[t] = make([]float64, len(frame))
		for k, c := range frame {
			if toDB(c) > thresh[k] {
				mask[t][k] = 1
			}
		}
	}
	mask = smooth(mask)

	for t, frame := range spectra {
		for k := range frame {
			gain := mask[t][k]*r.strength + (1 - r.strength)
			frame[k] *= complex(gain, 0)
		}
	}
	r.istft(fft, spectra, out)
	return out
}

// noiseThreshold returns mean + threshold*std of the noise magnitude per bin, in dB.
func (r *Reducer) noiseThreshold(fft *fourier.FFT, noise []float32) []float64 {
	spectra := r.stft(fft, noise)
	bins := r.n/2 + 1
	mean := make([]float64, bins)
	sq := make([]float64, bins)
	for _, frame := range spectra {
		for k, c := range frame {
			db := toDB(c)
			mean[k] += db
			sq[k] += db * db
		}
	}
	frames := float64(len(spectra))
	out := make([]float64, bins)
	for k := range out {
		m := mean[k] / frames
		variance := math.Max(0, sq[k]/frames-m*m)
		out[k] = m + r.threshold*math.Sqrt(variance)
	}
	return out
}

// stft computes centered, zero-padded, Hann-windowed frames every hop samples.
func (r *Reducer) stft(fft *fourier.FFT, x []float32) [][]complex128 {
	half := r.n / 2
	frames := 1 + len(x)/r.hop
	seq := make([]float64, r.n)
	out := make([][]complex128, frames)
	for t := range out {
		base := t*r.hop - half
		for i := range seq {
			j := base + i
			if j >= 0 && j < len(x) {
				seq[i] = float64(x[j]) * r.window[i]
			} else {
				seq[i] = 0
			}
		}
		out[t] = fft.Coefficients(nil, seq)
	}
	return out
}

// istft overlap-adds the inverse frames into dst with window-power normalization.
func (r *Reducer) istft(fft *fourier.FFT, spectra [][]complex128, dst []float32) {
	half := r.n / 2
	acc := make([]float64, len(dst))
	wsum := make([]float64, len(dst))
	seq := make([]float64, r.n)
	scale := 1 / float64(r.n)
	for t, frame := range spectra {
		fft.Sequence(seq, frame)
		base := t*r.hop - half
		for i, v := range seq {
			j := base + i
			if j < 0 || j >= len(dst) {
				continue
			}
			acc[j] += v * scale * r.window[i]
			wsum[j] += r.window[i] * r.window[i]
		}
	}
	for i := range dst {
		if wsum[i] > 1e-8 {
			dst[i] = float32(acc[i] / wsum[i])
		}
	}
}

// smooth averages the mask over a 3x3 time-frequency neighbourhood.
func smooth(mask [][]float64) [][]float64 {
	out := make([][]float64, len(mask))
	for t := range mask {
		out[t] = make([]float64, len(mask[t]))
		for k := range mask[t] {
			var sum float64
			var cnt int
			for dt := -1; dt <= 1; dt++ {
				tt := t + dt
				if tt < 0 || tt >= len(mask) {
					continue
				}
				for dk := -1; dk <= 1; dk++ {
					kk := k + dk
					if kk < 0 || kk >= len(mask[tt]) {
						continue
					}
					sum += mask[tt][kk]
					cnt++
				}
			}
			out[t][k] = sum / float64(cnt)
		}
	}
	return out
}

func toDB(c complex128) float64 {
	mag := math.Hypot(real(c), imag(c))
	return 20 * math.Log10(math.Max(magFloor, mag))
}
