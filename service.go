package xcomm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// Service is the central Facade: message lifecycle operations, delivery,
// event history and the listener hub.
type Service struct {
	engine    *Engine
	publisher *Publisher
	messages  MessageStore
	events    EventStore
	listeners ListenerRegistry
	pool      *DispatchPool
	clock     xclock.Clock
	logger    *xlog.Logger
	retry     RetryConfig

	closeStores  func(ctx context.Context) error
	closeTimeout time.Duration
	closeOnce    sync.Once
	closeErr     error
}

// Engine exposes the delivery engine.
func (s *Service) Engine() *Engine { return s.engine }

// Publisher exposes the event publisher.
func (s *Service) Publisher() *Publisher { return s.publisher }

// Create validates nm, stores a new message in state initial and publishes
// its creation as a StateChange event.
func (s *Service) Create(ctx context.Context, nm NewMessage) (*Message, error) {
	if s.engine.closed.Load() {
		return nil, ErrEngineClosed
	}
	if err := nm.Validate(); err != nil {
		return nil, err
	}
	msg := nm.build(uuid.NewString(), s.clock.Now())
	if err := s.messages.Insert(ctx, msg); err != nil {
		return nil, fmt.Errorf("xcomm: insert message: %w", err)
	}
	s.engine.publishState(ctx, msg, StateInitial)
	return msg, nil
}

// Get loads a message by id.
func (s *Service) Get(ctx context.Context, id string) (*Message, error) {
	return s.messages.Load(ctx, id)
}

// List returns the stored messages matching f, oldest first.
func (s *Service) List(ctx context.Context, f MessageFilter) ([]*Message, error) {
	if f.State != "" && !f.State.IsValid() {
		return nil, fmt.Errorf("%w: unknown state filter %q", ErrInvalidMessage, f.State)
	}
	if f.MessageType != "" && !f.MessageType.IsValid() {
		return nil, fmt.Errorf("%w: messageType %q", ErrInvalidMessage, f.MessageType)
	}
	return s.messages.List(ctx, f)
}

// Delete removes the message in any state and publishes a StateChange event
// with state deleted carrying the last stored snapshot. The event history of
// the message is kept. A delivery still running for the message fails its
// next save with ErrNotFound.
func (s *Service) Delete(ctx context.Context, id string) error {
	if s.engine.closed.Load() {
		return ErrEngineClosed
	}
	msg, err := s.messages.Load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.messages.Delete(ctx, id); err != nil {
		return fmt.Errorf("xcomm: delete %s: %w", id, err)
	}
	Touch(msg, s.clock.Now())
	s.engine.notify(EngineEvent{Type: Deleted, MessageID: id, From: msg.State})
	s.engine.publishState(ctx, msg, StateDeleted)
	return nil
}

// Update applies patch to the message. Attribute changes are published as a
// single AttributeChange event; a "state" entry goes through the state
// machine and is published as a StateChange event. Fields whose value does
// not change are ignored, so an update that changes nothing publishes nothing.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (*Message, error) {
	if s.engine.closed.Load() {
		return nil, ErrEngineClosed
	}
	msg, err := s.messages.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	from := msg.State
	next := msg.Clone()
	changes, target, err := patch.apply(next)
	if err != nil {
		return nil, err
	}
	stateChanged := target != "" && target != from
	if stateChanged {
		if err := Transition(next, target, s.clock.Now()); err != nil {
			var ise *InvalidStateError
			if errors.As(err, &ise) {
				ise.MessageID = id
			}
			return nil, err
		}
	}
	if !stateChanged && len(changes) == 0 {
		return msg, nil
	}
	if !stateChanged {
		Touch(next, s.clock.Now())
	}
	if err := s.messages.Save(ctx, next, from); err != nil {
		if errors.Is(err, ErrConflict) && stateChanged {
			return nil, &InvalidStateError{MessageID: id, From: from, To: target, Err: err}
		}
		return nil, fmt.Errorf("xcomm: save %s: %w", id, err)
	}
	if stateChanged {
		if target == StateCancelled {
			s.engine.metrics.cancelled.Add(1)
		}
		s.engine.notify(EngineEvent{Type: Transitioned, MessageID: id, From: from, To: target})
		s.engine.publishState(ctx, next, target)
	}
	ev, perr := s.publisher.PublishAttributeChange(ctx, next, changes)
	s.engine.afterPublish(id, EventAttributeChange, ev, perr)
	return next, nil
}

// Cancel moves an initial or inProgress message to cancelled.
func (s *Service) Cancel(ctx context.Context, id string) (*Message, error) {
	if s.engine.closed.Load() {
		return nil, ErrEngineClosed
	}
	msg, err := s.messages.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.engine.transition(ctx, msg, StateCancelled); err != nil {
		return nil, err
	}
	return msg, nil
}

// Send loads the message and delivers it with the service retry policy.
func (s *Service) Send(ctx context.Context, id string, tr Transport) (*Message, error) {
	return s.engine.DeliverByID(ctx, id, tr, s.retry)
}

// Deliver runs the engine on an already loaded message.
func (s *Service) Deliver(ctx context.Context, msg *Message, tr Transport, cfg RetryConfig) (*Message, error) {
	return s.engine.Deliver(ctx, msg, tr, cfg)
}

// Events returns the event history matching f, oldest first.
func (s *Service) Events(ctx context.Context, f EventFilter) ([]*Event, error) {
	lister, ok := s.events.(EventLister)
	if !ok {
		return nil, ErrHistoryUnsupported
	}
	evs, err := lister.List(ctx, f)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].EventTime.Before(evs[j].EventTime) })
	return evs, nil
}

// RegisterListener subscribes a callback address to events selected by query.
func (s *Service) RegisterListener(ctx context.Context, callback, query string) (Listener, error) {
	if callback == "" {
		return Listener{}, fmt.Errorf("%w: callback is required", ErrInvalidMessage)
	}
	return s.listeners.Register(ctx, callback, query)
}

// UnregisterListener removes a subscription.
func (s *Service) UnregisterListener(ctx context.Context, id string) error {
	return s.listeners.Unregister(ctx, id)
}

// AddObserver registers an observer for engine events.
func (s *Service) AddObserver(obs Observer) { s.engine.AddObserver(obs) }

// RemoveObserver unregisters an observer.
func (s *Service) RemoveObserver(obs Observer) { s.engine.RemoveObserver(obs) }

// GetMetrics merges engine counters with dispatch pool statistics.
func (s *Service) GetMetrics() Metrics {
	m := s.engine.GetMetrics()
	if s.pool != nil {
		st := s.pool.Stats()
		m.ListenerDispatched = st.Dispatched
		m.ListenerFailures = st.Failed
		m.EventsDropped = st.Dropped
	}
	return m
}

// DispatchStats returns the dispatch pool statistics.
func (s *Service) DispatchStats() PoolStats {
	if s.pool == nil {
		return PoolStats{}
	}
	return s.pool.Stats()
}

// Health reports engine health, degraded while the dispatch pool drops events.
func (s *Service) Health(ctx context.Context) HealthStatus {
	hs := s.engine.Health(ctx)
	hs.Metrics = s.GetMetrics()
	if hs.Status == "healthy" && hs.Metrics.EventsDropped > 0 {
		hs.Status = "degraded"
		hs.Message = fmt.Sprintf("%d events dropped by dispatch pool", hs.Metrics.EventsDropped)
	}
	return hs
}

// Close stops accepting work, drains the dispatch pool and closes the stores.
func (s *Service) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.engine.close()
		var errs []error
		if s.pool != nil {
			if err := s.pool.Close(s.closeTimeout); err != nil {
				errs = append(errs, err)
			}
		}
		if s.closeStores != nil {
			if err := s.closeStores(ctx); err != nil {
				s.logger.Error().Err(err).Msg("xcomm: store close failed")
				errs = append(errs, err)
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// Patch is a partial update keyed by wire field name. Values may be Go
// typed or as decoded from JSON (float64 numbers, RFC 3339 strings).
type Patch map[string]any

func (p Patch) apply(m *Message) (Changes, State, error) {
	changes := Changes{}
	var target State
	for field, v := range p {
		switch field {
		case "state":
			s, ok := v.(string)
			if st, isState := v.(State); isState {
				s, ok = string(st), true
			}
			if !ok {
				return nil, "", fmt.Errorf("%w: state must be a string", ErrInvalidMessage)
			}
			st, err := ParseState(s)
			if err != nil {
				return nil, "", err
			}
			target = st
		case "content":
			if err := setString(changes, field, &m.Content, v); err != nil {
				return nil, "", err
			}
		case "subject":
			if err := setString(changes, field, &m.Subject, v); err != nil {
				return nil, "", err
			}
		case "description":
			if err := setString(changes, field, &m.Description, v); err != nil {
				return nil, "", err
			}
		case "priority":
			if err := setString(changes, field, &m.Priority, v); err != nil {
				return nil, "", err
			}
		case "messageType":
			old := m.MessageType
			var s string
			switch t := v.(type) {
			case string:
				s = t
			case MessageType:
				s = string(t)
			default:
				return nil, "", fmt.Errorf("%w: messageType must be a string", ErrInvalidMessage)
			}
			mt := MessageType(s)
			if !mt.IsValid() {
				return nil, "", fmt.Errorf("%w: messageType %q", ErrInvalidMessage, s)
			}
			if mt != old {
				m.MessageType = mt
				changes[field] = FieldChange{OldValue: string(old), NewValue: string(mt)}
			}
		case "logFlag":
			b, ok := v.(bool)
			if !ok {
				return nil, "", fmt.Errorf("%w: logFlag must be a bool", ErrInvalidMessage)
			}
			if b != m.LogFlag {
				changes[field] = FieldChange{OldValue: m.LogFlag, NewValue: b}
				m.LogFlag = b
			}
		case "tryTimes":
			n, err := toInt(v)
			if err != nil || n < 1 {
				return nil, "", fmt.Errorf("%w: tryTimes must be a positive integer", ErrInvalidMessage)
			}
			if n != m.TryTimes {
				changes[field] = FieldChange{OldValue: m.TryTimes, NewValue: n}
				m.TryTimes = n
			}
		case "scheduledSendTime":
			t, err := toTime(v)
			if err != nil {
				return nil, "", fmt.Errorf("%w: scheduledSendTime: %v", ErrInvalidMessage, err)
			}
			if !sameTime(t, m.ScheduledSendTime) {
				changes[field] = FieldChange{OldValue: timeValue(m.ScheduledSendTime), NewValue: timeValue(t)}
				m.ScheduledSendTime = t
			}
		default:
			return nil, "", fmt.Errorf("%w: %q", ErrUnknownField, field)
		}
	}
	return changes, target, nil
}

func setString(changes Changes, field string, dst *string, v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("%w: %s must be a string", ErrInvalidMessage, field)
	}
	if s != *dst {
		changes[field] = FieldChange{OldValue: *dst, NewValue: s}
		*dst = s
	}
	return nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("not an integer: %v", n)
		}
		return int(n), nil
	}
	return 0, fmt.Errorf("unsupported type %T", v)
}

func toTime(v any) (*time.Time, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return &t, nil
	case *time.Time:
		return cloneTime(t), nil
	case string:
		if t == "" {
			return nil, nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return nil, err
		}
		return &parsed, nil
	}
	return nil, fmt.Errorf("unsupported type %T", v)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func timeValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}
