package transcription

import "github.com/kbukum/audioscribe/audio"

// Request is one recognition call against a backend.
type Request struct {
	// Audio is the normalized (and possibly denoised) segment.
	Audio audio.Buffer
	// Language is the expected language (e.g. "en"); empty lets the backend detect it.
	Language string
	// Model overrides the backend's configured model.
	Model string
}

// Response is a backend's result for one segment.
type Response struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments,omitempty"`
	// Duration is the audio duration in seconds as reported by the backend.
	Duration float64 `json:"duration,omitempty"`
	Language string  `json:"language,omitempty"`
}

// Segment is a time-aligned portion of a backend transcript, relative to
// the start of the submitted audio.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}
