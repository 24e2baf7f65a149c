package xcomm

import (
	"context"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// ctxKey is the base for all context keys in xcomm (prevents collisions).
type ctxKey string

const (
	loggerCtxKey  ctxKey = "xcomm:logger"
	clockCtxKey   ctxKey = "xcomm:clock"
	attemptCtxKey ctxKey = "xcomm:attempt"
)

func injectLogger(ctx context.Context, l *xlog.Logger) context.Context {
	if l == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerCtxKey, l)
}

// LoggerFromContext returns the engine logger inside a Transport.
func LoggerFromContext(ctx context.Context) (*xlog.Logger, bool) {
	if v := ctx.Value(loggerCtxKey); v != nil {
		if l, ok := v.(*xlog.Logger); ok && l != nil {
			return l, true
		}
	}
	return nil, false
}

func injectClock(ctx context.Context, c xclock.Clock) context.Context {
	if c == nil {
		return ctx
	}
	return context.WithValue(ctx, clockCtxKey, c)
}

// ClockFromContext returns the engine clock inside a Transport.
func ClockFromContext(ctx context.Context) (xclock.Clock, bool) {
	if v := ctx.Value(clockCtxKey); v != nil {
		if c, ok := v.(xclock.Clock); ok && c != nil {
			return c, true
		}
	}
	return nil, false
}

func injectAttempt(ctx context.Context, n int) context.Context {
	return context.WithValue(ctx, attemptCtxKey, n)
}

// AttemptFromContext returns the 1-based attempt number of the current call.
func AttemptFromContext(ctx context.Context) (int, bool) {
	n, ok := ctx.Value(attemptCtxKey).(int)
	return n, ok
}
