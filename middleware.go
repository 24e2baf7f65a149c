package xcomm

import (
	"context"
	"fmt"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// TimeoutMiddleware bounds a single delivery attempt.
// When exceeded the attempt fails with context.DeadlineExceeded and is retried.
func TimeoutMiddleware(d time.Duration) Middleware {
	if d <= 0 {
		return func(next AttemptFunc) AttemptFunc { return next }
	}
	return func(next AttemptFunc) AttemptFunc {
		return func(ctx context.Context, msg *Message) error {
			tctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			errCh := make(chan error, 1)
			go func() {
				defer func() {
					if r := recover(); r != nil {
						errCh <- fmt.Errorf("panic recovered: %v", r)
					}
				}()
				errCh <- next(tctx, msg)
			}()

			select {
			case <-tctx.Done():
				return tctx.Err()
			case err := <-errCh:
				return err
			}
		}
	}
}

// RecoveryMiddleware converts transport panics into attempt failures.
func RecoveryMiddleware() Middleware {
	return func(next AttemptFunc) AttemptFunc {
		return func(ctx context.Context, msg *Message) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic recovered: %v", r)
				}
			}()
			return next(ctx, msg)
		}
	}
}

// LoggingMiddleware logs every attempt outcome at debug level, failures at warn.
func LoggingMiddleware(l *xlog.Logger) Middleware {
	return func(next AttemptFunc) AttemptFunc {
		return func(ctx context.Context, msg *Message) error {
			clk, ok := ClockFromContext(ctx)
			if !ok {
				clk = xclock.Default()
			}
			start := clk.Now()
			err := next(ctx, msg)
			lg := l.With(
				xlog.Str("message_id", msg.ID),
				xlog.Str("message_type", string(msg.MessageType)),
				xlog.Dur("duration", clk.Since(start)),
			)
			if err != nil {
				lg.Warn().Err(err).Msg("xcomm attempt failed")
				return err
			}
			lg.Debug().Msg("xcomm attempt ok")
			return nil
		}
	}
}

// Chain composes middlewares around an attempt in order.
func Chain(h AttemptFunc, mws ...Middleware) AttemptFunc {
	if len(mws) == 0 {
		return h
	}
	wrapped := h
	// Apply in reverse so that first middleware wraps last.
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		wrapped = mws[i](wrapped)
	}
	return wrapped
}
