package denoise

import (
	"math"
	"math/rand/v2"
	"sync"
	"testing"
)

func whiteNoise(n int, amp float32, seed uint64) []float32 {
	r := rand.New(rand.NewPCG(seed, 99))
	x := make([]float32, n)
	for i := range x {
		x[i] = amp * float32(r.NormFloat64())
	}
	return x
}

func tone(n int, freq, rate float64, amp float32) []float32 {
	x := make([]float32, n)
	for i := range x {
		x[i] = amp * float32(math.Sin(2*math.Pi*freq*float64(i)/rate))
	}
	return x
}

func rms(x []float32) float64 {
	var s float64
	for _, v := range x {
		s += float64(v) * float64(v)
	}
	return math.Sqrt(s / float64(len(x)))
}

func TestReduce_EmptyInputs(t *testing.T) {
	r := NewReducer(Config{})
	if out := r.Reduce(nil, whiteNoise(100, 0.1, 1)); len(out) != 0 {
		t.Errorf("expected empty output, got %d samples", len(out))
	}

	in := tone(2000, 300, 16000, 0.3)
	out := r.Reduce(in, nil)
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("empty reference changed sample %d", i)
		}
	}
	out[0] = 42
	if in[0] == 42 {
		t.Error("output aliases input")
	}
}

func TestReduce_SilentReferenceReconstructs(t *testing.T) {
	r := NewReducer(Config{})
	in := whiteNoise(9000, 0.2, 5)
	out := r.Reduce(in, make([]float32, 4000))
	if len(out) != len(in) {
		t.Fatalf("length changed: %d -> %d", len(in), len(out))
	}
	for i := range in {
		if d := math.Abs(float64(out[i] - in[i])); d > 1e-4 {
			t.Fatalf("sample %d differs by %g", i, d)
		}
	}
}

func TestReduce_AttenuatesStationaryNoise(t *testing.T) {
	r := NewReducer(Config{Strength: 0.9})
	ref := whiteNoise(16000, 0.05, 1)
	in := whiteNoise(32000, 0.05, 2)

	out := r.Reduce(in, ref)
	if ratio := rms(out) / rms(in); ratio > 0.5 {
		t.Errorf("noise only reduced to %.2f of its level", ratio)
	}
}

func TestReduce_KeepsToneAboveNoise(t *testing.T) {
	const n = 32000
	r := NewReducer(Config{Strength: 0.9})
	clean := tone(n, 440, 16000, 0.5)
	noisy := whiteNoise(n, 0.01, 3)
	for i := range noisy {
		noisy[i] += clean[i]
	}

	out := r.Reduce(noisy, whiteNoise(8000, 0.01, 4))

	// Projection of the output onto the clean tone, away from the edges.
	var dot, norm float64
	for i := 2048; i < n-2048; i++ {
		dot += float64(out[i]) * float64(clean[i])
		norm += float64(clean[i]) * float64(clean[i])
	}
	if kept := dot / norm; kept < 0.85 || kept > 1.1 {
		t.Errorf("tone gain %.3f, want close to 1", kept)
	}
}

func TestReduce_ShorterThanWindow(t *testing.T) {
	r := NewReducer(Config{FFTSize: 1024})
	out := r.Reduce(whiteNoise(100, 0.1, 1), whiteNoise(50, 0.1, 2))
	if len(out) != 100 {
		t.Fatalf("expected 100 samples, got %d", len(out))
	}
	for i, v := range out {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Fatalf("sample %d is %v", i, v)
		}
	}
}

func TestReduce_ConcurrentAndDeterministic(t *testing.T) {
	r := NewReducer(Config{})
	in := whiteNoise(12000, 0.1, 7)
	ref := whiteNoise(8000, 0.1, 8)
	want := r.Reduce(in, ref)

	var wg sync.WaitGroup
	errs := make(chan int, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := r.Reduce(in, ref)
			for i := range got {
				if got[i] != want[i] {
					errs <- i
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for i := range errs {
		t.Errorf("concurrent result differs at sample %d", i)
	}
}

func TestConfig(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		enabled    bool
		perSegment bool
		global     bool
	}{
		{"default", Config{}, true, true, false},
		{"per segment", Config{Strategy: StrategyPerSegment}, true, true, false},
		{"global", Config{Strategy: StrategyGlobal}, true, false, true},
		{"none", Config{Strategy: StrategyNone}, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.cfg
			c.ApplyDefaults()
			if c.Enabled() != tt.enabled {
				t.Errorf("Enabled() = %v, want %v", c.Enabled(), tt.enabled)
			}
			if c.PerSegment() != tt.perSegment || c.Global() != tt.global {
				t.Errorf("PerSegment() = %v, Global() = %v", c.PerSegment(), c.Global())
			}
			if c.Strength != 0.9 || c.FFTSize != 1024 || c.Threshold != 1.5 {
				t.Errorf("unexpected defaults %+v", c)
			}
		})
	}
}
