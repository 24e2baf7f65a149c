package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/trickstertwo/xcomm"
	"github.com/trickstertwo/xcomm/webhook"
)

// StoreName is the registry name of the in-memory backend.
const StoreName = "memory"

func init() {
	if err := xcomm.RegisterStore(StoreName, func(cfg map[string]any) (xcomm.Stores, error) {
		return New(ConfigFromMap(cfg)), nil
	}); err != nil {
		panic(fmt.Errorf("xcomm/memory: failed to register store: %w", err))
	}
}

// Config tunes the in-memory backend.
type Config struct {
	// MaxEvents caps the retained event history; oldest events are evicted first (default: 0 = unbounded).
	MaxEvents int
	// CallbackTimeout bounds webhook calls made by the default sender (default: 10s).
	CallbackTimeout time.Duration
	// Sender delivers listener payloads (default: webhook client).
	Sender xcomm.Sender
}

// ConfigFromMap converts a generic map into Config.
// Keys: max_events, callback_timeout.
func ConfigFromMap(cfg map[string]any) Config {
	getInt := func(k string, d int) int {
		switch v := cfg[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		default:
			return d
		}
	}

	getDur := func(k string, d time.Duration) time.Duration {
		switch v := cfg[k].(type) {
		case time.Duration:
			return v
		case string:
			if p, err := time.ParseDuration(v); err == nil {
				return p
			}
		case float64:
			return time.Duration(v)
		}
		return d
	}

	return Config{
		MaxEvents:       maxInt(0, getInt("max_events", 0)),
		CallbackTimeout: getDur("callback_timeout", 10*time.Second),
	}
}

func (c Config) toMap() map[string]any {
	return map[string]any{
		"max_events":       c.MaxEvents,
		"callback_timeout": c.CallbackTimeout,
	}
}

// New returns the three in-memory stores.
func New(cfg Config) xcomm.Stores {
	sender := cfg.Sender
	if sender == nil {
		sender = webhook.NewClient(webhook.Config{Timeout: cfg.CallbackTimeout})
	}
	return xcomm.Stores{
		Messages:  NewMessageStore(),
		Events:    NewEventStore(cfg.MaxEvents),
		Listeners: NewListenerRegistry(sender),
		Close:     func(context.Context) error { return nil },
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
