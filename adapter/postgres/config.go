package postgres

import (
	"fmt"
	"time"

	"github.com/trickstertwo/xcomm"
)

// Config for the PostgreSQL stores.
type Config struct {
	DSN      string
	MaxConns int32
	// Migrate applies Schema on Open.
	Migrate bool

	// CallbackTimeout bounds webhook calls of the default listener sender.
	CallbackTimeout time.Duration
	// Sender overrides listener dispatch (default: webhook client).
	Sender xcomm.Sender
}

func Defaults() Config {
	return Config{
		MaxConns:        10,
		Migrate:         true,
		CallbackTimeout: 10 * time.Second,
	}
}

func (c Config) Validate() error {
	if c.DSN == "" {
		return fmt.Errorf("config: dsn required")
	}
	if c.MaxConns < 0 {
		return fmt.Errorf("config: max_conns must be >= 0, got %d", c.MaxConns)
	}
	return nil
}

func (c Config) toMap() map[string]any {
	return map[string]any{
		"dsn":              c.DSN,
		"max_conns":        int(c.MaxConns),
		"migrate":          c.Migrate,
		"callback_timeout": c.CallbackTimeout,
	}
}

// ConfigFromMap converts a generic map to Config, starting from Defaults.
func ConfigFromMap(m map[string]any) Config {
	c := Defaults()
	if v, ok := m["dsn"].(string); ok {
		c.DSN = v
	}
	switch v := m["max_conns"].(type) {
	case int:
		c.MaxConns = int32(v)
	case int32:
		c.MaxConns = v
	}
	if v, ok := m["migrate"].(bool); ok {
		c.Migrate = v
	}
	switch v := m["callback_timeout"].(type) {
	case time.Duration:
		if v > 0 {
			c.CallbackTimeout = v
		}
	case string:
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.CallbackTimeout = d
		}
	}
	return c
}
