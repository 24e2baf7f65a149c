package redisstore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trickstertwo/xcomm"
	"github.com/trickstertwo/xcomm/webhook"
)

// StoreName is the registry name of the Redis backend.
const StoreName = "redis"

func init() {
	if err := xcomm.RegisterStore(StoreName, func(cfg map[string]any) (xcomm.Stores, error) {
		return Open(ConfigFromMap(cfg))
	}); err != nil {
		panic(fmt.Errorf("xcomm: failed to register store %q: %w", StoreName, err))
	}
}

// Open dials Redis and returns the three stores sharing one client.
// Close on the returned Stores closes the client.
func Open(cfg Config) (xcomm.Stores, error) {
	if err := cfg.Validate(); err != nil {
		return xcomm.Stores{}, err
	}
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 5,
	}

	if cfg.TLS {
		opts.TLSConfig = &tls.Config{
			MinVersion:    tls.VersionTLS12,
			ServerName:    cfg.TLSServerName,
			Renegotiation: tls.RenegotiateNever,
		}
	}

	client := redis.NewClient(opts)
	if err := ping(client); err != nil {
		_ = client.Close()
		return xcomm.Stores{}, err
	}
	st := New(client, cfg)
	st.Close = func(context.Context) error { return client.Close() }
	return st, nil
}

// New builds the stores on an existing client. The caller owns the client.
func New(client redis.UniversalClient, cfg Config) xcomm.Stores {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = Defaults().KeyPrefix
	}
	sender := cfg.Sender
	if sender == nil {
		sender = webhook.NewClient(webhook.Config{Timeout: cfg.CallbackTimeout})
	}
	return xcomm.Stores{
		Messages:  &MessageStore{client: client, prefix: cfg.KeyPrefix},
		Events:    &EventStore{client: client, prefix: cfg.KeyPrefix, maxLen: cfg.MaxLenApprox},
		Listeners: &ListenerRegistry{client: client, prefix: cfg.KeyPrefix, sender: sender},
	}
}

func ping(c *redis.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.Ping(ctx).Err(); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("redis ping timeout: %w", err)
		}
		return err
	}
	return nil
}
