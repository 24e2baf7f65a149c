package memory

import (
	"fmt"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xcomm"
	"github.com/trickstertwo/xlog"
)

// Use builds a Service on the in-memory stores and installs it as the default.
//
// Example:
//
//	svc := memory.Use(memory.Config{MaxEvents: 10000},
//	    memory.WithLogger(logger),
//	    memory.WithRetryConfig(xcomm.RetryConfig{MaxRetries: 5}),
//	)
func Use(cfg Config, opts ...Option) *xcomm.Service {
	b := xcomm.NewBuilder()
	if cfg.Sender != nil {
		b.WithStores(New(cfg))
	} else {
		b.WithStore(StoreName, cfg.toMap())
	}

	for _, o := range opts {
		if o != nil {
			o(b)
		}
	}

	svc, err := b.Build()
	if err != nil {
		panic(fmt.Errorf("memory.Use: %w", err))
	}

	xcomm.SetDefault(svc)
	return svc
}

// Option configures the xcomm.Builder when calling Use.
type Option func(*xcomm.Builder)

// WithLogger injects a custom xlog logger.
func WithLogger(l *xlog.Logger) Option {
	return func(b *xcomm.Builder) { b.WithLogger(l) }
}

// WithClock injects a custom xclock clock.
func WithClock(c xclock.Clock) Option {
	return func(b *xcomm.Builder) { b.WithClock(c) }
}

// WithMiddleware wraps delivery attempts (timeout, logging, ...).
func WithMiddleware(mw ...xcomm.Middleware) Option {
	return func(b *xcomm.Builder) { b.WithMiddleware(mw...) }
}

// WithObserver attaches observers for lifecycle events.
func WithObserver(obs ...xcomm.Observer) Option {
	return func(b *xcomm.Builder) { b.WithObserver(obs...) }
}

// WithRetryConfig sets the retry policy used by Send.
func WithRetryConfig(c xcomm.RetryConfig) Option {
	return func(b *xcomm.Builder) { b.WithRetryConfig(c) }
}

// WithDispatchPool sizes the listener dispatch pool.
func WithDispatchPool(workers, bufferSize int) Option {
	return func(b *xcomm.Builder) { b.WithDispatchPool(workers, bufferSize) }
}

// WithDispatchTimeout bounds each listener callback.
func WithDispatchTimeout(d time.Duration) Option {
	return func(b *xcomm.Builder) { b.WithDispatchTimeout(d) }
}
