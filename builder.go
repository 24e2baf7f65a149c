package xcomm

import (
	"context"
	"errors"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// Builder constructs Service instances (Builder pattern).
type Builder struct {
	storeName string
	storeCfg  map[string]any

	messages  MessageStore
	events    EventStore
	sinks     []EventStore
	listeners ListenerRegistry
	closer    func(ctx context.Context) error

	codecName string
	codecInst Codec

	middlewares []Middleware
	observers   []Observer
	classifier  RetryClassifier
	retry       RetryConfig
	logger      *xlog.Logger
	clock       xclock.Clock

	dispatch     DispatchConfig
	closeTimeout time.Duration
}

// NewBuilder returns a new builder with sensible defaults.
func NewBuilder() *Builder {
	return &Builder{
		codecName:    "json",
		retry:        DefaultRetryConfig(),
		closeTimeout: 5 * time.Second,
	}
}

// WithStore selects a registered store backend by name.
// Explicit WithMessageStore / WithEventStore / WithListenerRegistry instances win.
func (b *Builder) WithStore(name string, cfg map[string]any) *Builder {
	b.storeName = name
	b.storeCfg = cfg
	return b
}

// WithStores accepts ready store instances (e.g., from an adapter constructor).
func (b *Builder) WithStores(s Stores) *Builder {
	if s.Messages != nil {
		b.messages = s.Messages
	}
	if s.Events != nil {
		b.events = s.Events
	}
	if s.Listeners != nil {
		b.listeners = s.Listeners
	}
	if s.Close != nil {
		b.closer = s.Close
	}
	return b
}

func (b *Builder) WithMessageStore(s MessageStore) *Builder {
	b.messages = s
	return b
}

func (b *Builder) WithEventStore(s EventStore) *Builder {
	b.events = s
	return b
}

// WithEventSink adds secondary event stores (audit streams). Sink failures are
// logged and never fail a publish.
func (b *Builder) WithEventSink(sinks ...EventStore) *Builder {
	for _, s := range sinks {
		if s != nil {
			b.sinks = append(b.sinks, s)
		}
	}
	return b
}

func (b *Builder) WithListenerRegistry(r ListenerRegistry) *Builder {
	b.listeners = r
	return b
}

func (b *Builder) WithCodec(name string) *Builder {
	b.codecName = name
	return b
}

// WithCodecInstance accepts a ready Codec instance.
func (b *Builder) WithCodecInstance(c Codec) *Builder {
	b.codecInst = c
	return b
}

// WithMiddleware wraps every delivery attempt.
func (b *Builder) WithMiddleware(mw ...Middleware) *Builder {
	if len(mw) == 0 {
		return b
	}
	b.middlewares = append(b.middlewares, mw...)
	return b
}

func (b *Builder) WithObserver(obs ...Observer) *Builder {
	for _, o := range obs {
		if o != nil {
			b.observers = append(b.observers, o)
		}
	}
	return b
}

// WithRetryClassifier installs a classifier for non-retryable attempt errors.
func (b *Builder) WithRetryClassifier(c RetryClassifier) *Builder {
	b.classifier = c
	return b
}

// WithRetryConfig sets the policy used by Service.Send.
func (b *Builder) WithRetryConfig(c RetryConfig) *Builder {
	b.retry = c.Normalize()
	return b
}

func (b *Builder) WithLogger(l *xlog.Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) WithClock(c xclock.Clock) *Builder {
	b.clock = c
	return b
}

// WithDispatchPool sizes the listener dispatch pool.
func (b *Builder) WithDispatchPool(workers, bufferSize int) *Builder {
	b.dispatch.Workers = workers
	b.dispatch.BufferSize = bufferSize
	return b
}

// WithDispatchTimeout bounds each listener callback.
func (b *Builder) WithDispatchTimeout(d time.Duration) *Builder {
	if d > 0 {
		b.dispatch.Timeout = d
	}
	return b
}

// WithCloseTimeout bounds how long Close waits for queued notifications.
func (b *Builder) WithCloseTimeout(d time.Duration) *Builder {
	if d > 0 {
		b.closeTimeout = d
	}
	return b
}

func (b *Builder) Build() (*Service, error) {
	closeStores := b.closer
	if b.storeName != "" {
		st, err := NewStore(b.storeName, b.storeCfg)
		if err != nil {
			return nil, err
		}
		if b.messages == nil {
			b.messages = st.Messages
		}
		if b.events == nil {
			b.events = st.Events
		}
		if b.listeners == nil {
			b.listeners = st.Listeners
		}
		if st.Close != nil {
			closeStores = joinClose(closeStores, st.Close)
		}
	}
	switch {
	case b.messages == nil:
		return nil, ErrNoMessageStore
	case b.events == nil:
		return nil, ErrNoEventStore
	case b.listeners == nil:
		return nil, ErrNoListenerRegistry
	}

	var cd Codec
	var err error
	if b.codecInst != nil {
		cd = b.codecInst
	} else if cd, err = NewCodec(b.codecName); err != nil {
		return nil, err
	}

	clk := b.clock
	if clk == nil {
		clk = xclock.Default()
	}
	lg := b.logger
	if lg == nil {
		lg = xlog.Default()
	}

	events := b.events
	if len(b.sinks) > 0 {
		events = &teeEventStore{primary: b.events, sinks: b.sinks, logger: lg}
	}

	eng := &Engine{
		store:       b.messages,
		clock:       clk,
		logger:      lg,
		classifier:  b.classifier,
		middlewares: b.middlewares,
		metrics:     &engineMetrics{},
	}

	// Attach logging observer first for dependable telemetry unless already supplied externally.
	hasLoggingObserver := false
	for _, o := range b.observers {
		if _, ok := o.(LoggingObserver); ok {
			hasLoggingObserver = true
			break
		}
	}
	if !hasLoggingObserver {
		eng.AddObserver(LoggingObserver{Logger: lg})
	}
	for _, o := range b.observers {
		eng.AddObserver(o)
	}

	pool := NewDispatchPool(b.listeners, cd, lg, b.dispatch, eng.notify)
	eng.publisher = NewPublisher(events, pool, clk)

	return &Service{
		engine:       eng,
		publisher:    eng.publisher,
		messages:     b.messages,
		events:       events,
		listeners:    b.listeners,
		pool:         pool,
		clock:        clk,
		logger:       lg,
		retry:        b.retry,
		closeStores:  closeStores,
		closeTimeout: b.closeTimeout,
	}, nil
}

// teeEventStore appends to the primary store and mirrors to audit sinks.
type teeEventStore struct {
	primary EventStore
	sinks   []EventStore
	logger  *xlog.Logger
}

func (t *teeEventStore) Append(ctx context.Context, e *Event) error {
	if err := t.primary.Append(ctx, e); err != nil {
		return err
	}
	for _, s := range t.sinks {
		if err := s.Append(ctx, e); err != nil {
			t.logger.Warn().Err(err).Str("event_id", e.EventID).Msg("xcomm event sink append failed")
		}
	}
	return nil
}

func (t *teeEventStore) List(ctx context.Context, f EventFilter) ([]*Event, error) {
	if l, ok := t.primary.(EventLister); ok {
		return l.List(ctx, f)
	}
	return nil, ErrHistoryUnsupported
}

func joinClose(a, b func(ctx context.Context) error) func(ctx context.Context) error {
	if a == nil {
		return b
	}
	return func(ctx context.Context) error { return errors.Join(a(ctx), b(ctx)) }
}
