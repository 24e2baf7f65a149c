package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/trickstertwo/xcomm"
	"github.com/trickstertwo/xcomm/webhook"
)

// StoreName is the registry name of the PostgreSQL backend.
const StoreName = "postgres"

func init() {
	if err := xcomm.RegisterStore(StoreName, func(cfg map[string]any) (xcomm.Stores, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return Open(ctx, ConfigFromMap(cfg))
	}); err != nil {
		panic(fmt.Errorf("xcomm: failed to register store %q: %w", StoreName, err))
	}
}

// Querier is the subset of pgxpool.Pool (and pgx.Tx) the stores use.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Open connects a pool, optionally migrates, and returns the stores.
// Close on the returned Stores closes the pool.
func Open(ctx context.Context, cfg Config) (xcomm.Stores, error) {
	if err := cfg.Validate(); err != nil {
		return xcomm.Stores{}, err
	}
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return xcomm.Stores{}, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return xcomm.Stores{}, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return xcomm.Stores{}, fmt.Errorf("postgres ping: %w", err)
	}
	if cfg.Migrate {
		if err := Migrate(ctx, pool); err != nil {
			pool.Close()
			return xcomm.Stores{}, err
		}
	}
	st := New(pool, cfg)
	st.Close = func(context.Context) error {
		pool.Close()
		return nil
	}
	return st, nil
}

// New builds the stores on an existing pool. The caller owns the pool.
func New(db Querier, cfg Config) xcomm.Stores {
	sender := cfg.Sender
	if sender == nil {
		sender = webhook.NewClient(webhook.Config{Timeout: cfg.CallbackTimeout})
	}
	return xcomm.Stores{
		Messages:  &MessageStore{db: db},
		Events:    &EventStore{db: db},
		Listeners: &ListenerRegistry{db: db, sender: sender},
	}
}
