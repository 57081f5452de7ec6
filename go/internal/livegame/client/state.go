package client

import (
	"errors"
	"fmt"
	"sync"
)

// ConnState is the lifecycle of a client connection to one session
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateJoined       ConnState = "joined"
	StateLeaving      ConnState = "leaving"
)

var ErrInvalidState = errors.New("invalid connection state transition")

var transitions = map[ConnState][]ConnState{
	StateDisconnected: {StateConnecting},
	StateConnecting:   {StateJoined, StateDisconnected},
	StateJoined:       {StateLeaving, StateDisconnected},
	StateLeaving:      {StateDisconnected},
}

type stateMachine struct {
	mu       sync.Mutex
	state    ConnState
	onChange func(from, to ConnState)
}

func newStateMachine(onChange func(from, to ConnState)) *stateMachine {
	return &stateMachine{state: StateDisconnected, onChange: onChange}
}

func (m *stateMachine) current() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func allowed(from, next ConnState) bool {
	for _, s := range transitions[from] {
		if s == next {
			return true
		}
	}
	return false
}

func (m *stateMachine) to(next ConnState) error {
	m.mu.Lock()
	from := m.state
	if !allowed(from, next) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, from, next)
	}
	m.state = next
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange(from, next)
	}
	return nil
}

// toIf moves to next only when the machine is currently in from
func (m *stateMachine) toIf(from, next ConnState) bool {
	m.mu.Lock()
	if m.state != from || !allowed(from, next) {
		m.mu.Unlock()
		return false
	}
	m.state = next
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange(from, next)
	}
	return true
}
