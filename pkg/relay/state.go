package relay

import (
	"fmt"
	"sync"
)

// State is where a submission is in its life cycle.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateAwaitingFirstByte
	StateStreaming
	StateClosedSuccess
	StateClosedError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateAwaitingFirstByte:
		return "awaiting_first_byte"
	case StateStreaming:
		return "streaming"
	case StateClosedSuccess:
		return "closed_success"
	case StateClosedError:
		return "closed_error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal states accept no further transitions.
func (s State) Terminal() bool {
	return s == StateClosedSuccess || s == StateClosedError
}

var transitions = map[State][]State{
	StateIdle:              {StateValidating},
	StateValidating:        {StateIdle, StateAwaitingFirstByte},
	StateAwaitingFirstByte: {StateStreaming, StateClosedSuccess, StateClosedError},
	StateStreaming:         {StateClosedSuccess, StateClosedError},
}

func (s State) CanTransition(to State) bool {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

type machine struct {
	mu    sync.Mutex
	state State
}

func (m *machine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *machine) transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.CanTransition(to) {
		return fmt.Errorf("relay: invalid transition %s -> %s", m.state, to)
	}
	m.state = to
	return nil
}
