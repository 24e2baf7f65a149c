package redisstore

import (
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xcomm"
	"github.com/trickstertwo/xlog"
)

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

// WithMiddleware wraps delivery attempts.
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

// WithEventSink mirrors events to audit sinks.
func WithEventSink(sinks ...xcomm.EventStore) Option {
	return func(b *xcomm.Builder) { b.WithEventSink(sinks...) }
}
