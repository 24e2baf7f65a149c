package xcomm

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a communication message.
type State string

const (
	StateInitial    State = "initial"
	StateInProgress State = "inProgress"
	StateCompleted  State = "completed"
	StateCancelled  State = "cancelled"
	StateFailed     State = "failed"

	// StateDeleted only appears in the StateChange event published when a
	// message is deleted. No document is ever stored in it.
	StateDeleted State = "deleted"
)

// transitions is the static lifecycle table. Terminal states map to nothing.
var transitions = map[State][]State{
	StateInitial:    {StateInProgress, StateCancelled},
	StateInProgress: {StateCompleted, StateFailed, StateCancelled},
	StateCompleted:  {},
	StateCancelled:  {},
	StateFailed:     {StateInProgress},
}

// AllStates lists every known state in table order.
func AllStates() []State {
	return []State{StateInitial, StateInProgress, StateCompleted, StateCancelled, StateFailed}
}

// IsValid reports whether s is one of the known states.
func (s State) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether s has no outgoing transitions.
func (s State) IsTerminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

func (s State) String() string { return string(s) }

// ParseState converts a wire value into a State.
func ParseState(v string) (State, error) {
	s := State(v)
	if !s.IsValid() {
		return "", fmt.Errorf("%w: unknown state %q", ErrInvalidState, v)
	}
	return s, nil
}

// IsValidTransition reports whether moving from -> to is permitted.
// Unknown states and self transitions are never valid.
func IsValidTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ValidTransitions returns the states reachable from the given state.
// The returned slice is owned by the caller.
func ValidTransitions(from State) []State {
	next := transitions[from]
	out := make([]State, len(next))
	copy(out, next)
	return out
}

// Transition moves msg to the target state and stamps lifecycle timestamps.
// SendTime is set the first time the message enters inProgress and is kept
// when a failed message is retried; SendTimeComplete is set on completed.
// UpdatedAt never moves backwards, so a now earlier than the last update is
// raised to it.
func Transition(msg *Message, to State, now time.Time) error {
	if msg == nil {
		return ErrNilMessage
	}
	from := msg.State
	if !IsValidTransition(from, to) {
		return &InvalidStateError{From: from, To: to, Err: ErrInvalidState}
	}
	now = Touch(msg, now)
	msg.State = to
	switch to {
	case StateInProgress:
		if msg.SendTime == nil {
			t := now
			msg.SendTime = &t
		}
	case StateCompleted:
		t := now
		msg.SendTimeComplete = &t
	}
	return nil
}

// Touch stamps msg.UpdatedAt with now, or keeps the current value when now
// is earlier, and returns the stamp.
func Touch(msg *Message, now time.Time) time.Time {
	if now.Before(msg.UpdatedAt) {
		now = msg.UpdatedAt
	}
	msg.UpdatedAt = now
	return now
}
