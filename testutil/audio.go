package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kbukum/audioscribe/audio"
)

// Rate is the sample rate of every fixture.
const Rate = audio.DefaultSampleRate

// Square fills x[start:end] with a ±amp square wave of 400 Hz at Rate,
// loud enough to be classified as speech.
func Square(x []float32, start, end int, amp float32) {
	for i := start; i < end; i++ {
		if (i/20)%2 == 0 {
			x[i] = amp
		} else {
			x[i] = -amp
		}
	}
}

// SpeechWithPause writes a canonical 10 second WAV with "speech" in
// [0s,4s) and [5s,10s) and digital silence in between. Segmenting it
// yields two segments of 4s and 5s. It returns the path and the file bytes.
func SpeechWithPause(t testing.TB) (string, []byte) {
	t.Helper()
	x := make([]float32, 10*Rate)
	Square(x, 0, 4*Rate, 0.5)
	Square(x, 5*Rate, 10*Rate, 0.5)
	return WriteWAV(t, "speech.wav", audio.NewBuffer(x, Rate))
}

// WriteWAV saves buf under a fresh temporary directory.
func WriteWAV(t testing.TB, name string, buf audio.Buffer) (string, []byte) {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := audio.Save(path, buf); err != nil {
		t.Fatalf("save %s: %v", name, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return path, data
}

// DirEntries lists the names in dir, failing the test on error.
func DirEntries(t testing.TB, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names
}
