package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/kashyapanjali/periskope/internal/bus"
)

// State represents a chat session state.
type State string

const (
	Unauthenticated     State = "UNAUTHENTICATED"
	Authenticating      State = "AUTHENTICATING"
	AuthenticatedEmpty  State = "AUTHENTICATED_EMPTY"
	AuthenticatedIdle   State = "AUTHENTICATED_IDLE"
	AuthenticatedActive State = "AUTHENTICATED_ACTIVE"
	Closed              State = "CLOSED"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Unauthenticated:     {Authenticating, Closed},
	Authenticating:      {AuthenticatedEmpty, AuthenticatedIdle, AuthenticatedActive, Unauthenticated, Closed},
	AuthenticatedEmpty:  {AuthenticatedIdle, AuthenticatedActive, Unauthenticated, Closed},
	AuthenticatedIdle:   {AuthenticatedEmpty, AuthenticatedActive, Unauthenticated, Closed},
	AuthenticatedActive: {AuthenticatedEmpty, AuthenticatedIdle, Unauthenticated, Closed},
	Closed:              {},
}

// Authenticated reports whether s is one of the signed-in sub-states.
func (s State) Authenticated() bool {
	return s == AuthenticatedEmpty || s == AuthenticatedIdle || s == AuthenticatedActive
}

// ForContents picks the authenticated sub-state matching the session contents.
func ForContents(hasChats, hasActive bool) State {
	switch {
	case hasActive:
		return AuthenticatedActive
	case hasChats:
		return AuthenticatedIdle
	default:
		return AuthenticatedEmpty
	}
}

// Machine tracks and enforces session state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Unauthenticated state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Unauthenticated,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
// Moving to the current state is a no-op and publishes nothing.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == to {
		return nil
	}
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.bus.Publish(bus.Event{
		Kind: bus.KindStatusChanged,
		Payload: StatusChange{
			From: from,
			To:   to,
		},
	})
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
