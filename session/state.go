package session

import "fmt"

// State is a job's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateIngesting
	StateTranscoding
	StateProfilingAndSegmenting
	StateRecognizing
	StateComplete
	StateFailed
)

var stateNames = [...]string{
	StateIdle:                   "idle",
	StateIngesting:              "ingesting",
	StateTranscoding:            "transcoding",
	StateProfilingAndSegmenting: "profiling_and_segmenting",
	StateRecognizing:            "recognizing",
	StateComplete:               "complete",
	StateFailed:                 "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// transitions lists the forward edges. Failed is reachable from every
// non-terminal state and is not listed.
var transitions = map[State][]State{
	StateIdle:                   {StateIngesting},
	StateIngesting:              {StateTranscoding, StateProfilingAndSegmenting},
	StateTranscoding:            {StateProfilingAndSegmenting},
	StateProfilingAndSegmenting: {StateRecognizing},
	StateRecognizing:            {StateComplete},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
