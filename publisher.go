package xcomm

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/trickstertwo/xclock"
)

// Publisher builds lifecycle events, appends them to the event store and
// hands them to the dispatch pool. It never waits on listeners.
type Publisher struct {
	events EventStore
	pool   *DispatchPool
	clock  xclock.Clock
	newID  func() string
}

// NewPublisher wires a publisher. pool may be nil when nobody listens.
func NewPublisher(events EventStore, pool *DispatchPool, clock xclock.Clock) *Publisher {
	if clock == nil {
		clock = xclock.Default()
	}
	return &Publisher{
		events: events,
		pool:   pool,
		clock:  clock,
		newID:  func() string { return uuid.NewString() },
	}
}

// PublishStateChange emits a StateChange event carrying a snapshot of msg.
func (p *Publisher) PublishStateChange(ctx context.Context, msg *Message, state State) (*Event, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}
	e := &Event{
		EventID:   p.newID(),
		EventType: EventStateChange,
		EventTime: p.eventTime(msg),
		Payload: EventPayload{
			CommunicationMessageID: msg.ID,
			CommunicationMessage:   msg.Clone(),
			State:                  state,
		},
	}
	return e, p.publish(ctx, e)
}

// PublishAttributeChange emits one AttributeChange event for all changes.
// An empty change set publishes nothing and returns nil, nil.
func (p *Publisher) PublishAttributeChange(ctx context.Context, msg *Message, changes Changes) (*Event, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}
	if len(changes) == 0 {
		return nil, nil
	}
	cp := make(Changes, len(changes))
	for k, v := range changes {
		cp[k] = v
	}
	e := &Event{
		EventID:   p.newID(),
		EventType: EventAttributeChange,
		EventTime: p.eventTime(msg),
		Payload: EventPayload{
			CommunicationMessageID: msg.ID,
			CommunicationMessage:   msg.Clone(),
			ChangedAttributes:      cp,
		},
	}
	return e, p.publish(ctx, e)
}

func (p *Publisher) publish(ctx context.Context, e *Event) error {
	if p.events != nil {
		if err := p.events.Append(ctx, e); err != nil {
			return &EventPersistenceError{EventType: e.EventType, MessageID: e.MessageID(), Err: err}
		}
	}
	if p.pool != nil {
		p.pool.Enqueue(e)
	}
	return nil
}

// eventTime is the time of the change the event reports: msg.UpdatedAt,
// which Transition and Touch keep non-decreasing per message. Messages that
// were never stamped fall back to the clock.
func (p *Publisher) eventTime(msg *Message) time.Time {
	if msg.UpdatedAt.IsZero() {
		return p.clock.Now()
	}
	return msg.UpdatedAt
}
