package xcomm

import (
	"context"
)

// AttemptFunc performs one delivery attempt. Return an error to consume a retry.
type AttemptFunc func(ctx context.Context, msg *Message) error

// Middleware composes concerns around a delivery attempt.
type Middleware func(next AttemptFunc) AttemptFunc

// Transport is the Strategy that actually hands a message to a channel provider
// (SMS gateway, mail relay, push service).
type Transport interface {
	Attempt(ctx context.Context, msg *Message) error
}

// TransportFunc is an Adapter that lets a plain function satisfy Transport.
type TransportFunc func(ctx context.Context, msg *Message) error

func (f TransportFunc) Attempt(ctx context.Context, msg *Message) error { return f(ctx, msg) }

// MessageStore persists message documents.
// Save is a compare-and-set: it succeeds only if the stored document is in
// state expected and at msg.Version, then bumps msg.Version. Otherwise it
// returns ErrConflict (or ErrNotFound). Delete returns ErrNotFound for an
// unknown id.
type MessageStore interface {
	Load(ctx context.Context, id string) (*Message, error)
	Insert(ctx context.Context, msg *Message) error
	Save(ctx context.Context, msg *Message, expected State) error
	List(ctx context.Context, f MessageFilter) ([]*Message, error)
	Delete(ctx context.Context, id string) error
}

// EventStore is the append-only sink for published events.
type EventStore interface {
	Append(ctx context.Context, e *Event) error
}

// EventLister is implemented by event stores that can replay history.
type EventLister interface {
	List(ctx context.Context, f EventFilter) ([]*Event, error)
}

// Sender delivers an encoded notification to a callback address.
type Sender interface {
	Send(ctx context.Context, callback string, payload []byte) error
}

// SenderFunc is an Adapter that lets a plain function satisfy Sender.
type SenderFunc func(ctx context.Context, callback string, payload []byte) error

func (f SenderFunc) Send(ctx context.Context, callback string, payload []byte) error {
	return f(ctx, callback, payload)
}

// ListenerRegistry stores hub subscriptions and delivers payloads to them.
type ListenerRegistry interface {
	Register(ctx context.Context, callback, query string) (Listener, error)
	Unregister(ctx context.Context, id string) error
	ListenersFor(ctx context.Context, t EventType) ([]Listener, error)
	Dispatch(ctx context.Context, callback string, payload []byte) error
}

// Stores bundles the persistence collaborators a store factory produces.
type Stores struct {
	Messages  MessageStore
	Events    EventStore
	Listeners ListenerRegistry
	// Close releases backend resources; may be nil.
	Close func(ctx context.Context) error
}

// Codec is the Strategy for encoding events on the wire.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// Observer receives engine lifecycle events. Implementations should be non-blocking.
type Observer interface {
	OnEvent(e EngineEvent)
}

// HealthChecker provides health status for production monitoring.
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}

// API is the complete xcomm service surface.
type API interface {
	Create(ctx context.Context, nm NewMessage) (*Message, error)
	Get(ctx context.Context, id string) (*Message, error)
	List(ctx context.Context, f MessageFilter) ([]*Message, error)
	Delete(ctx context.Context, id string) error
	Update(ctx context.Context, id string, patch Patch) (*Message, error)
	Cancel(ctx context.Context, id string) (*Message, error)
	Send(ctx context.Context, id string, tr Transport) (*Message, error)
	Deliver(ctx context.Context, msg *Message, tr Transport, cfg RetryConfig) (*Message, error)
	Events(ctx context.Context, f EventFilter) ([]*Event, error)
	RegisterListener(ctx context.Context, callback, query string) (Listener, error)
	UnregisterListener(ctx context.Context, id string) error
	Close(ctx context.Context) error
	GetMetrics() Metrics
	Health(ctx context.Context) HealthStatus
	AddObserver(obs Observer)
	RemoveObserver(obs Observer)
}

var _ API = (*Service)(nil)
