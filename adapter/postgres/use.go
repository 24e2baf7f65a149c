package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/trickstertwo/xcomm"
)

// Use builds a Service on PostgreSQL stores and installs it as the default.
func Use(cfg Config, opts ...Option) *xcomm.Service {
	b := xcomm.NewBuilder()
	if cfg.Sender != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		st, err := Open(ctx, cfg)
		cancel()
		if err != nil {
			panic(fmt.Errorf("postgres.Use: %w", err))
		}
		b.WithStores(st)
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
		panic(fmt.Errorf("postgres.Use: %w", err))
	}
	xcomm.SetDefault(svc)
	return svc
}

// Option configures the xcomm.Builder when calling Use.
type Option func(*xcomm.Builder)

func WithObserver(obs ...xcomm.Observer) Option {
	return func(b *xcomm.Builder) { b.WithObserver(obs...) }
}

func WithRetryConfig(c xcomm.RetryConfig) Option {
	return func(b *xcomm.Builder) { b.WithRetryConfig(c) }
}

func WithEventSink(sinks ...xcomm.EventStore) Option {
	return func(b *xcomm.Builder) { b.WithEventSink(sinks...) }
}
