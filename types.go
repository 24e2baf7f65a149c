package xcomm

import (
	"time"
)

// RetryConfig bounds the delivery attempt loop.
type RetryConfig struct {
	// MaxRetries is the total number of attempts, including the first one.
	MaxRetries int
	// InitialDelay is the wait after the first failed attempt.
	InitialDelay time.Duration
	// DelayMultiplier scales the wait after each further failure.
	DelayMultiplier float64
}

// DefaultRetryConfig returns {3, 1s, 2}.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, InitialDelay: time.Second, DelayMultiplier: 2}
}

// Normalize replaces zero or invalid fields with the defaults.
func (c RetryConfig) Normalize() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxRetries < 1 {
		c.MaxRetries = d.MaxRetries
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.DelayMultiplier <= 0 {
		c.DelayMultiplier = d.DelayMultiplier
	}
	return c
}

// Delays returns the backoff schedule between consecutive attempts
// (len == MaxRetries-1).
func (c RetryConfig) Delays() []time.Duration {
	c = c.Normalize()
	out := make([]time.Duration, 0, c.MaxRetries-1)
	d := c.InitialDelay
	for i := 1; i < c.MaxRetries; i++ {
		out = append(out, d)
		d = nextDelay(d, c.DelayMultiplier)
	}
	return out
}

// maxDelay caps the backoff so the multiplication never overflows.
const maxDelay = 24 * time.Hour

func nextDelay(d time.Duration, mult float64) time.Duration {
	n := time.Duration(float64(d) * mult)
	if n <= 0 || n > maxDelay {
		return maxDelay
	}
	return n
}

// EngineEventType enumerates internal lifecycle events for the Observer pattern.
type EngineEventType string

const (
	DeliverStart         EngineEventType = "deliver_start"
	DeliverDone          EngineEventType = "deliver_done"
	AttemptStart         EngineEventType = "attempt_start"
	AttemptFailed        EngineEventType = "attempt_failed"
	BackoffScheduled     EngineEventType = "backoff_scheduled"
	Transitioned         EngineEventType = "transitioned"
	Deleted              EngineEventType = "deleted"
	EventPublished       EngineEventType = "event_published"
	EventPersistFailed   EngineEventType = "event_persist_failed"
	ListenerDispatched   EngineEventType = "listener_dispatched"
	ListenerFailed       EngineEventType = "listener_failed"
	DispatchDropped      EngineEventType = "dispatch_dropped"
	DeliveryConfirmation EngineEventType = "delivery_confirmation"
	DeliveryFailure      EngineEventType = "delivery_failure"
)

// EngineEvent carries telemetry for observers.
type EngineEvent struct {
	Type      EngineEventType
	MessageID string
	From      State
	To        State
	EventType EventType
	EventID   string
	Callback  string
	Attempt   int
	Delay     time.Duration
	Duration  time.Duration
	Err       error
}

// PoolStats returns telemetry about the dispatch pool.
type PoolStats struct {
	Dropped      uint64 // Events dropped due to a full shard
	Processed    uint64 // Events fanned out
	Dispatched   uint64 // Successful listener callbacks
	Failed       uint64 // Failed listener callbacks
	ActiveEvents int    // Current queue depth over all shards
	Workers      int
	BufferSize   int // Capacity per shard
}

// Metrics defines observable telemetry for the service.
type Metrics struct {
	Deliveries          uint64
	Completed           uint64
	Failed              uint64
	Cancelled           uint64
	Attempts            uint64
	AttemptFailures     uint64
	Conflicts           uint64
	EventsPublished     uint64
	EventPersistErrors  uint64
	ListenerDispatched  uint64
	ListenerFailures    uint64
	EventsDropped       uint64
	AvgAttemptLatencyMs float64
}

// HealthStatus indicates service health for Kubernetes liveness and readiness checks.
type HealthStatus struct {
	Status    string // "healthy", "degraded", "unhealthy"
	Metrics   Metrics
	Timestamp time.Time
	Message   string
}
