package redisstore

import (
	"fmt"
	"time"

	"github.com/trickstertwo/xcomm"
)

// Config for the Redis stores.
type Config struct {
	// Connection
	Addr          string
	Username      string
	Password      string
	DB            int
	TLS           bool
	TLSServerName string

	// KeyPrefix namespaces every key.
	KeyPrefix string
	// MaxLenApprox trims the global events stream (~ MAXLEN); per-message streams are not trimmed.
	MaxLenApprox int64

	// CallbackTimeout bounds webhook calls of the default listener sender.
	CallbackTimeout time.Duration
	// Sender overrides listener dispatch (default: webhook client).
	Sender xcomm.Sender
}

// Defaults returns a Config with production-safe defaults.
func Defaults() Config {
	return Config{
		Addr:            "127.0.0.1:6379",
		KeyPrefix:       "xcomm:",
		CallbackTimeout: 10 * time.Second,
	}
}

// Validate checks Config for production readiness.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: addr required")
	}
	if c.KeyPrefix == "" {
		return fmt.Errorf("config: key_prefix required")
	}
	if c.MaxLenApprox < 0 {
		return fmt.Errorf("config: max_len_approx must be >= 0, got %d", c.MaxLenApprox)
	}
	return nil
}

// toMap converts Config to generic map for the store factory.
func (c Config) toMap() map[string]any {
	return map[string]any{
		"addr":             c.Addr,
		"username":         c.Username,
		"password":         c.Password,
		"db":               c.DB,
		"tls":              c.TLS,
		"tls_server_name":  c.TLSServerName,
		"key_prefix":       c.KeyPrefix,
		"max_len_approx":   c.MaxLenApprox,
		"callback_timeout": c.CallbackTimeout,
	}
}

// ConfigFromMap safely converts generic map to Config with defaults.
func ConfigFromMap(m map[string]any) Config {
	c := Defaults()

	if v, ok := m["addr"].(string); ok && v != "" {
		c.Addr = v
	}
	if v, ok := m["username"].(string); ok {
		c.Username = v
	}
	if v, ok := m["password"].(string); ok {
		c.Password = v
	}
	if v, ok := m["db"].(int); ok {
		c.DB = v
	}
	if v, ok := m["tls"].(bool); ok {
		c.TLS = v
	}
	if v, ok := m["tls_server_name"].(string); ok {
		c.TLSServerName = v
	}
	if v, ok := m["key_prefix"].(string); ok && v != "" {
		c.KeyPrefix = v
	}
	switch v := m["max_len_approx"].(type) {
	case int64:
		c.MaxLenApprox = v
	case int:
		c.MaxLenApprox = int64(v)
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
