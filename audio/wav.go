package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM      = 1
	canonicalBitDepth = 16

	riffHeaderSize  = 12
	chunkHeaderSize = 8
	// WAVE_FORMAT_EXTENSIBLE is the largest fmt chunk in use.
	maxFmtChunkSize = 40
)

// ErrNotWAV is returned when the input is not a readable PCM WAV stream.
var ErrNotWAV = errors.New("not a PCM WAV file")

// Info describes a WAV header.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Format     int
}

// Canonical reports whether the stream is 16-bit mono PCM at rate.
func (i Info) Canonical(rate int) bool {
	return i.Format == wavFormatPCM && i.Channels == 1 && i.BitDepth == canonicalBitDepth && i.SampleRate == rate
}

// Probe reads the WAV header at path.
func Probe(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()
	return probe(f)
}

func probe(r io.ReadSeeker) (Info, error) {
	if err := checkChunks(r); err != nil {
		return Info{}, err
	}
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return Info{}, ErrNotWAV
	}
	return Info{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
		Format:     int(d.WavAudioFormat),
	}, nil
}

// IsCanonical reports whether path is already 16-bit mono PCM WAV at rate,
// so transcoding can be skipped. Unreadable files are not canonical.
func IsCanonical(path string, rate int) bool {
	info, err := Probe(path)
	return err == nil && info.Canonical(rate)
}

// Load decodes a PCM WAV file into a mono Buffer. Multi-channel input is
// downmixed by averaging. If rate is non-zero the file must match it.
func Load(path string, rate int) (Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return Buffer{}, err
	}
	defer f.Close()
	return Decode(f, rate)
}

// Decode reads a PCM WAV stream into a mono Buffer.
func Decode(r io.ReadSeeker, rate int) (Buffer, error) {
	if err := checkChunks(r); err != nil {
		return Buffer{}, err
	}
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return Buffer{}, ErrNotWAV
	}
	if d.WavAudioFormat != wavFormatPCM {
		return Buffer{}, fmt.Errorf("%w: format %d", ErrNotWAV, d.WavAudioFormat)
	}
	if rate != 0 && int(d.SampleRate) != rate {
		return Buffer{}, fmt.Errorf("audio: sample rate %d, want %d", d.SampleRate, rate)
	}
	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return Buffer{}, fmt.Errorf("audio: decode: %w", err)
	}
	channels := int(d.NumChans)
	if channels <= 0 {
		channels = 1
	}
	return NewBuffer(toMonoFloat(pcm.Data, channels, int(d.BitDepth)), int(d.SampleRate)), nil
}

// checkChunks walks the RIFF chunk headers before the decoder sees them.
// The decoder allocates whatever a chunk header declares, so every chunk
// must fit in the stream and the fmt chunk must have a plausible size.
// r is rewound to the start on success.
func checkChunks(r io.ReadSeeker) error {
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	var hdr [riffHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return ErrNotWAV
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return ErrNotWAV
	}

	pos := int64(riffHeaderSize)
	sawFmt := false
	for pos+chunkHeaderSize <= size {
		var ch [chunkHeaderSize]byte
		if _, err := io.ReadFull(io.LimitReader(r, chunkHeaderSize), ch[:]); err != nil {
			return ErrNotWAV
		}
		id := string(ch[0:4])
		n := int64(binary.LittleEndian.Uint32(ch[4:8]))
		pos += chunkHeaderSize
		if n > size-pos {
			return fmt.Errorf("%w: chunk %q declares %d bytes, %d left", ErrNotWAV, id, n, size-pos)
		}
		if id == "fmt " {
			if n < 16 || n > maxFmtChunkSize {
				return fmt.Errorf("%w: fmt chunk of %d bytes", ErrNotWAV, n)
			}
			sawFmt = true
		}
		pos += n + n%2
		if _, err := r.Seek(pos, io.SeekStart); err != nil {
			return fmt.Errorf("audio: %w", err)
		}
	}
	if !sawFmt {
		return ErrNotWAV
	}
	_, err = r.Seek(0, io.SeekStart)
	return err
}

func toMonoFloat(data []int, channels, bitDepth int) []float32 {
	scale, offset := 1.0, 0.0
	switch bitDepth {
	case 8:
		// 8-bit WAV samples are unsigned.
		scale, offset = 128, 128
	default:
		scale = math.Exp2(float64(bitDepth - 1))
	}
	frames := len(data) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += (float64(data[i*channels+c]) - offset) / scale
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

// Encode writes b as 16-bit mono PCM WAV.
func Encode(w io.WriteSeeker, b Buffer) error {
	enc := wav.NewEncoder(w, b.rate, canonicalBitDepth, 1, wavFormatPCM)
	data := make([]int, len(b.samples))
	for i, s := range b.samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		data[i] = int(math.Round(v * math.MaxInt16))
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: b.rate},
		Data:           data,
		SourceBitDepth: canonicalBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audio: encode: %w", err)
	}
	return enc.Close()
}

// EncodeBytes returns b encoded as a 16-bit mono PCM WAV file.
func EncodeBytes(b Buffer) ([]byte, error) {
	var ws writeSeeker
	if err := Encode(&ws, b); err != nil {
		return nil, err
	}
	return ws.buf, nil
}

// Save writes b to path as 16-bit mono PCM WAV.
func Save(path string, b Buffer) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Encode(f, b); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeSeeker is an in-memory io.WriteSeeker; the WAV encoder seeks back
// to patch chunk sizes once the data length is known.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	if end := w.pos + len(p); end > len(w.buf) {
		w.buf = append(w.buf, make([]byte, end-len(w.buf))...)
	}
	n := copy(w.buf[w.pos:], p)
	w.pos += n
	return n, nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(w.pos) + offset
	case io.SeekEnd:
		abs = int64(len(w.buf)) + offset
	default:
		return 0, errors.New("audio: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("audio: negative position")
	}
	w.pos = int(abs)
	return abs, nil
}
