package xcomm

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                    = errors.New("xcomm: not found")
	ErrConflict                    = errors.New("xcomm: conflicting update")
	ErrInvalidState                = errors.New("xcomm: invalid state transition")
	ErrInvalidMessage              = errors.New("xcomm: invalid message")
	ErrUnknownField                = errors.New("xcomm: unknown field")
	ErrNilMessage                  = errors.New("xcomm: nil message")
	ErrNilTransport                = errors.New("xcomm: nil transport")
	ErrEngineClosed                = errors.New("xcomm: engine closed")
	ErrNoMessageStore              = errors.New("xcomm: no message store configured")
	ErrNoEventStore                = errors.New("xcomm: no event store configured")
	ErrNoListenerRegistry          = errors.New("xcomm: no listener registry configured")
	ErrHistoryUnsupported          = errors.New("xcomm: event store does not support listing")
	ErrDispatchPoolShutdownTimeout = errors.New("xcomm: dispatch pool shutdown timeout")
)

// ErrUnknownStore is returned by NewStore for names nobody registered.
type ErrUnknownStore struct{ name string }

func (e ErrUnknownStore) Error() string { return fmt.Sprintf("xcomm: unknown store: %s", e.name) }

// InvalidStateError reports a rejected lifecycle transition.
// Err is ErrInvalidState for table violations and ErrConflict when a
// concurrent writer moved the message first.
type InvalidStateError struct {
	MessageID string
	From      State
	To        State
	Err       error
}

func (e *InvalidStateError) Error() string {
	if e.MessageID != "" {
		return fmt.Sprintf("xcomm: message %s: cannot transition %s -> %s: %v", e.MessageID, e.From, e.To, e.Err)
	}
	return fmt.Sprintf("xcomm: cannot transition %s -> %s: %v", e.From, e.To, e.Err)
}

func (e *InvalidStateError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrInvalidState) match conflicts too.
func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// TransportError is returned once the retry budget is exhausted.
type TransportError struct {
	MessageID string
	Attempts  int
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("xcomm: delivery of %s failed after %d attempt(s): %v", e.MessageID, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// EventPersistenceError means an event could not be appended to the event store.
// The state transition that produced it stays committed.
type EventPersistenceError struct {
	EventType EventType
	MessageID string
	Err       error
}

func (e *EventPersistenceError) Error() string {
	return fmt.Sprintf("xcomm: persist %s for %s: %v", e.EventType, e.MessageID, e.Err)
}

func (e *EventPersistenceError) Unwrap() error { return e.Err }

// ListenerDispatchError describes a failed callback delivery. It is only logged.
type ListenerDispatchError struct {
	Callback string
	EventID  string
	Err      error
}

func (e *ListenerDispatchError) Error() string {
	return fmt.Sprintf("xcomm: dispatch event %s to %s: %v", e.EventID, e.Callback, e.Err)
}

func (e *ListenerDispatchError) Unwrap() error { return e.Err }

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable. The engine stops the attempt loop on it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err (or anything it wraps) was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
