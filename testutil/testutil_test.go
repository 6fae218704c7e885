package testutil

import (
	"context"
	"testing"

	"github.com/kbukum/audioscribe/audio"
	"github.com/kbukum/audioscribe/component"
)

type recorder struct {
	name   string
	events *[]string
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) Start(context.Context) error {
	*r.events = append(*r.events, "start:"+r.name)
	return nil
}

func (r *recorder) Stop(context.Context) error {
	*r.events = append(*r.events, "stop:"+r.name)
	return nil
}

func (r *recorder) Health(context.Context) component.Health {
	return component.Health{Name: r.name, Status: component.StatusHealthy}
}

func TestStart_StopsInReverse(t *testing.T) {
	var events []string
	t.Run("inner", func(t *testing.T) {
		reg := Start(t, &recorder{name: "a", events: &events}, &recorder{name: "b", events: &events})
		RequireHealthy(t, reg)
	})
	want := []string{"start:a", "start:b", "stop:b", "stop:a"}
	if len(events) != len(want) {
		t.Fatalf("got %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("got %v, want %v", events, want)
		}
	}
}

func TestSpeechWithPause(t *testing.T) {
	path, data := SpeechWithPause(t)
	if len(data) == 0 {
		t.Fatal("empty fixture")
	}
	if !audio.IsCanonical(path, Rate) {
		t.Fatal("fixture must already be canonical")
	}
	buf, err := audio.Load(path, Rate)
	if err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 10*Rate {
		t.Fatalf("expected %d samples, got %d", 10*Rate, buf.Len())
	}
	if s := buf.Samples()[4*Rate+10]; s != 0 {
		t.Fatalf("expected silence in the pause, got %v", s)
	}
}
