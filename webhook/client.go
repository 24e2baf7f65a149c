// Package webhook delivers hub notifications to listener callback URLs and
// provides a receiver for consuming them.
package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"github.com/trickstertwo/xcomm"
	"github.com/trickstertwo/xlog"
)

// ErrCallbackStatus is wrapped by errors for non-2xx callback responses.
var ErrCallbackStatus = errors.New("webhook: unexpected callback status")

// Config tunes the webhook client. Zero values pick defaults.
type Config struct {
	// Timeout bounds one POST (default: 10s).
	Timeout time.Duration
	// ConsecutiveFailures opens a callback's breaker (default: 5).
	ConsecutiveFailures uint32
	// OpenTimeout is how long an open breaker rejects calls before probing (default: 30s).
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of trial requests allowed while half-open (default: 1).
	HalfOpenRequests uint32
	// UserAgent is sent with each notification.
	UserAgent string
	// HTTPClient overrides the underlying client.
	HTTPClient *http.Client
	Logger     *xlog.Logger
}

// Client POSTs notification payloads. Every callback address gets its own
// circuit breaker so one dead listener does not slow the others down.
type Client struct {
	cfg  Config
	http *http.Client

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

var _ xcomm.Sender = (*Client)(nil)

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "xcomm-webhook/1"
	}
	if cfg.Logger == nil {
		cfg.Logger = xlog.Default()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: hc, breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (c *Client) breaker(callback string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[callback]; ok {
		return cb
	}
	limit := c.cfg.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        callback,
		MaxRequests: c.cfg.HalfOpenRequests,
		Timeout:     c.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= limit
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			c.cfg.Logger.Warn().
				Str("callback", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("webhook breaker state change")
		},
	})
	c.breakers[callback] = cb
	return cb
}

// Send POSTs payload as JSON to callback.
func (c *Client) Send(ctx context.Context, callback string, payload []byte) error {
	_, err := c.breaker(callback).Execute(func() (interface{}, error) {
		return nil, c.post(ctx, callback, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("webhook: callback %s unavailable: %w", callback, err)
	}
	return err
}

func (c *Client) post(ctx context.Context, callback string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callback, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post %s: %w", callback, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s returned %d", ErrCallbackStatus, callback, resp.StatusCode)
	}
	return nil
}

// State returns the breaker state name for callback ("closed" if never used).
func (c *Client) State(callback string) string {
	c.mu.Lock()
	cb, ok := c.breakers[callback]
	c.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed.String()
	}
	return cb.State().String()
}
