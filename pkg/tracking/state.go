package tracking

import "fmt"

// State is the tracking controller state.
type State int

const (
	// StateLost means no subject is tracked. Initial and recovery state.
	StateLost State = iota
	// StateDetect means candidates are appearing but not yet confirmed.
	StateDetect
	// StateTrack means the subject is confirmed and seen this frame.
	StateTrack
	// StateReject means a confirmed subject went missing and the filter
	// is coasting on its prediction.
	StateReject
)

var stateNames = [...]string{"LOST", "DETECT", "TRACK", "REJECT"}

// String returns the state name.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	for i, n := range stateNames {
		if n == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("tracking: unknown state %q", b)
}

// Tracking reports whether outputs are valid in this state.
func (s State) Tracking() bool {
	return s == StateTrack || s == StateReject
}

// stateMachine advances the tracking state once per frame.
type stateMachine struct {
	state   State
	counter int

	minDetect int
	minReject int
	maxCov    float64
}

func newStateMachine(cfg Config) stateMachine {
	return stateMachine{
		minDetect: cfg.MinDetectFrames,
		minReject: cfg.MinRejectFrames,
		maxCov:    cfg.MaxRejectCov,
	}
}

// step applies one frame's detection outcome. covNorm is the positional
// covariance norm of the current estimate. It reports whether the track
// must be hard reset; the machine itself is already back in LOST then.
func (m *stateMachine) step(hasCandidate bool, covNorm float64) (reset bool) {
	switch m.state {
	case StateLost:
		if hasCandidate {
			m.state = StateDetect
			m.counter = 1
			m.promote()
		}

	case StateDetect:
		if !hasCandidate {
			m.state = StateLost
			m.counter = 0
			return false
		}
		m.counter++
		m.promote()

	case StateTrack:
		if !hasCandidate {
			// The first miss already counts toward rejection.
			m.state = StateReject
			m.counter = 1
			return m.expired(covNorm)
		}

	case StateReject:
		if hasCandidate {
			m.state = StateTrack
			m.counter = 0
			return false
		}
		m.counter++
		return m.expired(covNorm)
	}
	return false
}

func (m *stateMachine) promote() {
	if m.counter > m.minDetect {
		m.state = StateTrack
		m.counter = 0
	}
}

func (m *stateMachine) expired(covNorm float64) bool {
	if m.counter > m.minReject && covNorm > m.maxCov {
		m.state = StateLost
		m.counter = 0
		return true
	}
	return false
}
