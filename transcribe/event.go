package transcribe

import (
	"encoding/json"

	apperrors "github.com/kbukum/audioscribe/errors"
)

// Kind classifies an Event.
type Kind string

const (
	KindStatus   Kind = "status"
	KindProgress Kind = "progress"
	KindText     Kind = "text"
	KindError    Kind = "error"
)

// Status values carried by status events.
const (
	StatusDownloading = "downloading"
	StatusConverting  = "converting"
	StatusComplete    = "complete"
)

// Event is one message of a job's result stream.
type Event struct {
	// Seq is the event's position in its job's stream, assigned by a Sequencer.
	Seq  int
	Kind Kind
	// Segment is the 0-based segment index of text and segment error events,
	// -1 otherwise.
	Segment  int
	Text     string
	Status   string
	Progress float64
	// Err is the failure behind an error event.
	Err error
}

// TextEvent is the recognized text of segment i.
func TextEvent(i int, text string) Event {
	return Event{Kind: KindText, Segment: i, Text: text}
}

// SegmentErrorEvent reports that segment i could not be recognized.
func SegmentErrorEvent(i int, err error) Event {
	return Event{Kind: KindError, Segment: i, Err: err}
}

// ErrorEvent reports a failure of the whole job.
func ErrorEvent(err error) Event {
	return Event{Kind: KindError, Segment: -1, Err: err}
}

// StatusEvent reports a job phase.
func StatusEvent(status string) Event {
	return Event{Kind: KindStatus, Segment: -1, Status: status}
}

// ProgressEvent reports download progress as a percentage in [0,100].
func ProgressEvent(pct float64) Event {
	return Event{Kind: KindProgress, Segment: -1, Progress: min(max(pct, 0), 100)}
}

// IsComplete reports whether e is the final status event of a successful job.
func (e Event) IsComplete() bool {
	return e.Kind == KindStatus && e.Status == StatusComplete
}

// Message is the client-facing text of an error event.
func (e Event) Message() string {
	if e.Err == nil {
		return ""
	}
	return apperrors.From(e.Err).Message
}

type wireText struct {
	Seq     int    `json:"seq"`
	Text    string `json:"text"`
	Segment int    `json:"segment"`
}

type wireStatus struct {
	Seq    int    `json:"seq"`
	Status string `json:"status"`
}

type wireProgress struct {
	Seq      int     `json:"seq"`
	Progress float64 `json:"progress"`
}

type wireError struct {
	Seq     int    `json:"seq"`
	Error   string `json:"error"`
	Segment *int   `json:"segment,omitempty"`
}

// MarshalJSON renders the wire form: {"seq":0,"text":"...","segment":0},
// {"seq":1,"status":"complete"}, {"seq":2,"progress":42.5} or
// {"seq":3,"error":"...","segment":1}.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case KindText:
		return json.Marshal(wireText{Seq: e.Seq, Text: e.Text, Segment: e.Segment})
	case KindStatus:
		return json.Marshal(wireStatus{Seq: e.Seq, Status: e.Status})
	case KindProgress:
		return json.Marshal(wireProgress{Seq: e.Seq, Progress: e.Progress})
	default:
		w := wireError{Seq: e.Seq, Error: e.Message()}
		if e.Segment >= 0 {
			seg := e.Segment
			w.Segment = &seg
		}
		return json.Marshal(w)
	}
}

// Sequencer numbers the events of one job, starting at 0. It is not safe
// for concurrent use; the job's single writer owns it.
type Sequencer struct {
	next int
}

// Stamp assigns the next sequence number to e.
func (s *Sequencer) Stamp(e Event) Event {
	e.Seq = s.next
	s.next++
	return e
}

// Next returns the number the next stamped event will get.
func (s *Sequencer) Next() int { return s.next }
