package xcomm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// RetryClassifier decides whether an attempt error should stop the retry loop.
type RetryClassifier interface {
	IsNonRetryable(err error) bool
}

// RetryClassifierFunc is an Adapter that lets a plain function satisfy RetryClassifier.
type RetryClassifierFunc func(err error) bool

func (f RetryClassifierFunc) IsNonRetryable(err error) bool { return f(err) }

// Engine drives messages through delivery: initial|failed -> inProgress ->
// completed|failed, with bounded exponential backoff between attempts.
type Engine struct {
	store       MessageStore
	publisher   *Publisher
	clock       xclock.Clock
	logger      *xlog.Logger
	classifier  RetryClassifier
	middlewares []Middleware

	observersMu sync.RWMutex
	observers   []Observer

	metrics *engineMetrics
	closed  atomic.Bool
}

type engineMetrics struct {
	deliveries         atomic.Uint64
	completed          atomic.Uint64
	failed             atomic.Uint64
	cancelled          atomic.Uint64
	attempts           atomic.Uint64
	attemptFailures    atomic.Uint64
	conflicts          atomic.Uint64
	eventsPublished    atomic.Uint64
	eventPersistErrors atomic.Uint64
	attemptNanos       atomic.Int64
}

// Deliver runs the attempt loop for msg using tr. msg is updated in place on
// every committed transition and returned.
//
// Errors: *InvalidStateError if msg is not initial or failed (nothing happens),
// or if another writer won the move to inProgress; *TransportError once
// cfg.MaxRetries attempts failed; a wrapped ctx.Err() if ctx ends during
// backoff, in which case the message is left in failed.
func (e *Engine) Deliver(ctx context.Context, msg *Message, tr Transport, cfg RetryConfig) (*Message, error) {
	if e.closed.Load() {
		return msg, ErrEngineClosed
	}
	if msg == nil {
		return nil, ErrNilMessage
	}
	if tr == nil {
		return msg, ErrNilTransport
	}
	if msg.State != StateInitial && msg.State != StateFailed {
		return msg, &InvalidStateError{MessageID: msg.ID, From: msg.State, To: StateInProgress, Err: ErrInvalidState}
	}
	cfg = cfg.Normalize()
	e.metrics.deliveries.Add(1)
	start := e.clock.Now()
	e.notify(EngineEvent{Type: DeliverStart, MessageID: msg.ID, From: msg.State})

	if err := e.transition(ctx, msg, StateInProgress); err != nil {
		e.notify(EngineEvent{Type: DeliverDone, MessageID: msg.ID, Duration: e.clock.Since(start), Err: err})
		return msg, err
	}

	attempt := Chain(tr.Attempt, append([]Middleware{RecoveryMiddleware()}, e.middlewares...)...)
	actx := injectClock(injectLogger(ctx, e.logger), e.clock)

	var lastErr error
	delay := cfg.InitialDelay
	attempts := 0
	for n := 1; n <= cfg.MaxRetries; n++ {
		attempts = n
		e.metrics.attempts.Add(1)
		e.notify(EngineEvent{Type: AttemptStart, MessageID: msg.ID, Attempt: n})
		astart := e.clock.Now()
		lastErr = attempt(injectAttempt(actx, n), msg)
		e.metrics.attemptNanos.Add(int64(e.clock.Since(astart)))

		if lastErr == nil {
			msg.Attempts = attempts
			if err := e.transition(ctx, msg, StateCompleted); err != nil {
				e.notify(EngineEvent{Type: DeliverDone, MessageID: msg.ID, Duration: e.clock.Since(start), Err: err})
				return msg, err
			}
			e.metrics.completed.Add(1)
			e.notify(EngineEvent{Type: DeliveryConfirmation, MessageID: msg.ID, Attempt: attempts, Duration: e.clock.Since(start)})
			e.notify(EngineEvent{Type: DeliverDone, MessageID: msg.ID, Duration: e.clock.Since(start)})
			return msg, nil
		}

		e.metrics.attemptFailures.Add(1)
		e.notify(EngineEvent{Type: AttemptFailed, MessageID: msg.ID, Attempt: n, Err: lastErr})
		if n == cfg.MaxRetries || !e.retryable(lastErr) {
			break
		}

		e.notify(EngineEvent{Type: BackoffScheduled, MessageID: msg.ID, Attempt: n, Delay: delay})
		if err := sleepContext(ctx, delay); err != nil {
			// Cancelled while waiting: park the message in failed so it can be resent.
			msg.Attempts = attempts
			cause := fmt.Errorf("xcomm: delivery of %s interrupted after %d attempt(s): %w", msg.ID, attempts, err)
			if terr := e.transition(context.WithoutCancel(ctx), msg, StateFailed); terr != nil {
				cause = errors.Join(cause, terr)
			} else {
				e.metrics.failed.Add(1)
			}
			e.notify(EngineEvent{Type: DeliveryFailure, MessageID: msg.ID, Attempt: attempts, Err: cause})
			e.notify(EngineEvent{Type: DeliverDone, MessageID: msg.ID, Duration: e.clock.Since(start), Err: cause})
			return msg, cause
		}
		delay = nextDelay(delay, cfg.DelayMultiplier)
	}

	msg.Attempts = attempts
	terr := &TransportError{MessageID: msg.ID, Attempts: attempts, Err: lastErr}
	if err := e.transition(context.WithoutCancel(ctx), msg, StateFailed); err != nil {
		e.notify(EngineEvent{Type: DeliverDone, MessageID: msg.ID, Duration: e.clock.Since(start), Err: err})
		return msg, errors.Join(terr, err)
	}
	e.metrics.failed.Add(1)
	e.notify(EngineEvent{Type: DeliveryFailure, MessageID: msg.ID, Attempt: attempts, Err: terr})
	e.notify(EngineEvent{Type: DeliverDone, MessageID: msg.ID, Duration: e.clock.Since(start), Err: terr})
	return msg, terr
}

// DeliverByID loads the message and delivers it.
func (e *Engine) DeliverByID(ctx context.Context, id string, tr Transport, cfg RetryConfig) (*Message, error) {
	msg, err := e.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("xcomm: load %s: %w", id, err)
	}
	return e.Deliver(ctx, msg, tr, cfg)
}

// transition validates and commits msg -> to, then publishes the StateChange
// event. msg is only modified if the store accepted the write. A failed event
// append is logged and does not undo the transition.
func (e *Engine) transition(ctx context.Context, msg *Message, to State) error {
	from := msg.State
	next := msg.Clone()
	if err := Transition(next, to, e.clock.Now()); err != nil {
		var ise *InvalidStateError
		if errors.As(err, &ise) {
			ise.MessageID = msg.ID
		}
		return err
	}
	if err := e.store.Save(ctx, next, from); err != nil {
		if errors.Is(err, ErrConflict) {
			e.metrics.conflicts.Add(1)
			return &InvalidStateError{MessageID: msg.ID, From: from, To: to, Err: err}
		}
		return fmt.Errorf("xcomm: save %s (%s -> %s): %w", msg.ID, from, to, err)
	}
	*msg = *next
	if to == StateCancelled {
		e.metrics.cancelled.Add(1)
	}
	e.notify(EngineEvent{Type: Transitioned, MessageID: msg.ID, From: from, To: to})
	e.publishState(ctx, msg, to)
	return nil
}

func (e *Engine) publishState(ctx context.Context, msg *Message, state State) {
	ev, err := e.publisher.PublishStateChange(ctx, msg, state)
	e.afterPublish(msg.ID, EventStateChange, ev, err)
}

func (e *Engine) afterPublish(messageID string, t EventType, ev *Event, err error) {
	if err != nil {
		e.metrics.eventPersistErrors.Add(1)
		e.logger.Warn().Err(err).Str("message_id", messageID).Str("event_type", string(t)).Msg("xcomm event not persisted")
		e.notify(EngineEvent{Type: EventPersistFailed, MessageID: messageID, EventType: t, Err: err})
		return
	}
	if ev == nil {
		return
	}
	e.metrics.eventsPublished.Add(1)
	e.notify(EngineEvent{Type: EventPublished, MessageID: messageID, EventType: t, EventID: ev.EventID})
}

func (e *Engine) retryable(err error) bool {
	if IsPermanent(err) {
		return false
	}
	if e.classifier != nil && e.classifier.IsNonRetryable(err) {
		return false
	}
	return true
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("context done: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}

// AddObserver registers an observer for engine events.
func (e *Engine) AddObserver(obs Observer) {
	if obs == nil {
		return
	}
	e.observersMu.Lock()
	e.observers = append(e.observers, obs)
	e.observersMu.Unlock()
}

// RemoveObserver unregisters an observer. Observers are compared by identity,
// so func-typed observers (ObserverFunc) cannot be removed.
func (e *Engine) RemoveObserver(obs Observer) {
	if obs == nil {
		return
	}
	e.observersMu.Lock()
	defer e.observersMu.Unlock()
	for i, o := range e.observers {
		if sameObserver(o, obs) {
			e.observers = append(e.observers[:i], e.observers[i+1:]...)
			return
		}
	}
}

func sameObserver(a, b Observer) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}

func (e *Engine) notify(ev EngineEvent) {
	e.observersMu.RLock()
	obs := make([]Observer, len(e.observers))
	copy(obs, e.observers)
	e.observersMu.RUnlock()
	for _, o := range obs {
		o.OnEvent(ev)
	}
}

// GetMetrics returns engine counters. Listener counters are filled in by Service.
func (e *Engine) GetMetrics() Metrics {
	m := Metrics{
		Deliveries:         e.metrics.deliveries.Load(),
		Completed:          e.metrics.completed.Load(),
		Failed:             e.metrics.failed.Load(),
		Cancelled:          e.metrics.cancelled.Load(),
		Attempts:           e.metrics.attempts.Load(),
		AttemptFailures:    e.metrics.attemptFailures.Load(),
		Conflicts:          e.metrics.conflicts.Load(),
		EventsPublished:    e.metrics.eventsPublished.Load(),
		EventPersistErrors: e.metrics.eventPersistErrors.Load(),
	}
	if m.Attempts > 0 {
		m.AvgAttemptLatencyMs = float64(e.metrics.attemptNanos.Load()) / float64(m.Attempts) / float64(time.Millisecond)
	}
	return m
}

// Health derives a status from the metrics: unhealthy once closed, degraded
// when more than half the attempts fail or events are not being persisted.
func (e *Engine) Health(_ context.Context) HealthStatus {
	m := e.GetMetrics()
	hs := HealthStatus{Status: "healthy", Metrics: m, Timestamp: e.clock.Now()}
	switch {
	case e.closed.Load():
		hs.Status = "unhealthy"
		hs.Message = "engine closed"
	case m.EventPersistErrors > 0 && m.EventPersistErrors*10 > m.EventsPublished:
		hs.Status = "degraded"
		hs.Message = "event store errors above 10%"
	case m.Attempts >= 10 && m.AttemptFailures*2 > m.Attempts:
		hs.Status = "degraded"
		hs.Message = "attempt failure rate above 50%"
	}
	return hs
}

func (e *Engine) close() { e.closed.Store(true) }
