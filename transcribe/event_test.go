package transcribe

import (
	"encoding/json"
	"errors"
	"testing"

	apperrors "github.com/kbukum/audioscribe/errors"
)

func TestEvent_MarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{"text", TextEvent(0, "hello"), `{"seq":4,"text":"hello","segment":0}`},
		{"empty text", TextEvent(2, ""), `{"seq":4,"text":"","segment":2}`},
		{"status", StatusEvent(StatusComplete), `{"seq":4,"status":"complete"}`},
		{"progress", ProgressEvent(42.5), `{"seq":4,"progress":42.5}`},
		{"progress clamped", ProgressEvent(140), `{"seq":4,"progress":100}`},
		{"segment error", SegmentErrorEvent(1, apperrors.SegmentRecognition(1, errors.New("timeout"))),
			`{"seq":4,"error":"Recognition failed for segment 1","segment":1}`},
		{"job error", ErrorEvent(apperrors.Transcode("Conversion failed", nil)), `{"seq":4,"error":"Conversion failed"}`},
		{"plain error", ErrorEvent(errors.New("disk full")),
			`{"seq":4,"error":"An unexpected error occurred. Please try again or contact support."}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := tt.event
			e.Seq = 4
			got, err := json.Marshal(e)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSequencer(t *testing.T) {
	var s Sequencer
	events := []Event{StatusEvent(StatusDownloading), ProgressEvent(10), TextEvent(0, "a"), StatusEvent(StatusComplete)}
	for i, e := range events {
		if got := s.Stamp(e).Seq; got != i {
			t.Fatalf("event %d stamped %d", i, got)
		}
	}
	if s.Next() != len(events) {
		t.Fatalf("expected next %d, got %d", len(events), s.Next())
	}
}
