package session

import "fmt"

// State is the lifecycle position of a session
type State int

const (
	Loading State = iota
	Evaluating
	Ready
	CapturingPhoto
	TimerBeforeRecord
	Recording
	EndRecorded
	Captured
	Destroyed
)

var stateNames = [...]string{
	Loading:           "loading",
	Evaluating:        "evaluating",
	Ready:             "ready",
	CapturingPhoto:    "capturingPhoto",
	TimerBeforeRecord: "timerBeforeRecord",
	Recording:         "recording",
	EndRecorded:       "endRecorded",
	Captured:          "captured",
	Destroyed:         "destroyed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText encodes the state by name
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transitions except Destroyed can happen
func (s State) Terminal() bool {
	return s == Captured || s == Destroyed
}
