package xcomm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/trickstertwo/xlog"
)

// DispatchPool fans published events out to registered listeners.
// Events are sharded by message id so notifications about one message reach
// listeners in publish order; different messages are dispatched concurrently.
// Enqueue never blocks the publishing path: a full shard drops the event.
type DispatchPool struct {
	shards   []chan *Event
	registry ListenerRegistry
	codec    Codec
	logger   *xlog.Logger
	notify   func(EngineEvent)
	timeout  time.Duration

	stop chan struct{}
	wg   sync.WaitGroup

	// mu orders Enqueue sends against Close: an event accepted under the
	// read lock is in its shard before stop is closed, so workers drain it.
	mu     sync.RWMutex
	closed bool

	dropped   atomic.Uint64
	processed atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
}

// DispatchConfig tunes the pool. Zero values pick defaults.
type DispatchConfig struct {
	Workers    int           // shard count, default 4
	BufferSize int           // capacity per shard, default 1024
	Timeout    time.Duration // per callback, default 10s
}

// NewDispatchPool starts the shard workers.
// notify may be nil; it receives ListenerDispatched / ListenerFailed / DispatchDropped.
func NewDispatchPool(registry ListenerRegistry, codec Codec, logger *xlog.Logger, cfg DispatchConfig, notify func(EngineEvent)) *DispatchPool {
	if cfg.Workers < 1 {
		cfg.Workers = 4
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if codec == nil {
		codec = JSONCodec{}
	}
	if logger == nil {
		logger = xlog.Default()
	}
	if notify == nil {
		notify = func(EngineEvent) {}
	}
	dp := &DispatchPool{
		shards:   make([]chan *Event, cfg.Workers),
		registry: registry,
		codec:    codec,
		logger:   logger,
		notify:   notify,
		timeout:  cfg.Timeout,
		stop:     make(chan struct{}),
	}
	for i := range dp.shards {
		dp.shards[i] = make(chan *Event, cfg.BufferSize)
		dp.wg.Add(1)
		go dp.worker(dp.shards[i])
	}
	return dp
}

func (dp *DispatchPool) shardFor(messageID string) chan *Event {
	return dp.shards[xxhash.Sum64String(messageID)%uint64(len(dp.shards))]
}

// Enqueue schedules e for fan-out. It returns false if the event was dropped.
func (dp *DispatchPool) Enqueue(e *Event) bool {
	if e == nil {
		return false
	}
	dp.mu.RLock()
	accepted := false
	if !dp.closed {
		select {
		case dp.shardFor(e.MessageID()) <- e:
			accepted = true
		default:
		}
	}
	dp.mu.RUnlock()
	if !accepted {
		dp.drop(e)
	}
	return accepted
}

func (dp *DispatchPool) drop(e *Event) {
	dp.dropped.Add(1)
	dp.logger.Warn().
		Str("event_id", e.EventID).
		Str("event_type", string(e.EventType)).
		Str("message_id", e.MessageID()).
		Msg("xcomm dispatch dropped")
	dp.notify(EngineEvent{Type: DispatchDropped, MessageID: e.MessageID(), EventID: e.EventID, EventType: e.EventType})
}

func (dp *DispatchPool) worker(ch chan *Event) {
	defer dp.wg.Done()
	for {
		select {
		case <-dp.stop:
			// Drain what was accepted before Close.
			for {
				select {
				case e := <-ch:
					dp.dispatch(e)
				default:
					return
				}
			}
		case e := <-ch:
			dp.dispatch(e)
		}
	}
}

// dispatch delivers one event to every interested listener.
// Listener failures are isolated from each other and from the publisher.
func (dp *DispatchPool) dispatch(e *Event) {
	if e == nil {
		return
	}
	defer dp.processed.Add(1)
	if dp.registry == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), dp.timeout)
	listeners, err := dp.registry.ListenersFor(ctx, e.EventType)
	cancel()
	if err != nil {
		dp.logger.Error().Err(err).Str("event_type", string(e.EventType)).Msg("xcomm list listeners failed")
		return
	}
	if len(listeners) == 0 {
		return
	}

	payload, err := dp.codec.Marshal(e)
	if err != nil {
		dp.logger.Error().Err(err).Str("event_id", e.EventID).Msg("xcomm encode event failed")
		return
	}

	for _, l := range listeners {
		start := time.Now()
		err := dp.send(l.Callback, payload)
		if err != nil {
			dp.failed.Add(1)
			derr := &ListenerDispatchError{Callback: l.Callback, EventID: e.EventID, Err: err}
			dp.logger.Warn().Err(derr).Str("listener_id", l.ID).Msg("xcomm listener dispatch failed")
			dp.notify(EngineEvent{Type: ListenerFailed, MessageID: e.MessageID(), EventID: e.EventID,
				EventType: e.EventType, Callback: l.Callback, Duration: time.Since(start), Err: derr})
			continue
		}
		dp.delivered.Add(1)
		dp.notify(EngineEvent{Type: ListenerDispatched, MessageID: e.MessageID(), EventID: e.EventID,
			EventType: e.EventType, Callback: l.Callback, Duration: time.Since(start)})
	}
}

func (dp *DispatchPool) send(callback string, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic recovered: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), dp.timeout)
	defer cancel()
	return dp.registry.Dispatch(ctx, callback, payload)
}

// Close stops accepting events and waits up to timeout for queued ones to drain.
func (dp *DispatchPool) Close(timeout time.Duration) error {
	dp.mu.Lock()
	if dp.closed {
		dp.mu.Unlock()
		return nil
	}
	dp.closed = true
	close(dp.stop)
	dp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		dp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrDispatchPoolShutdownTimeout
	}
}

// Stats returns current pool statistics.
func (dp *DispatchPool) Stats() PoolStats {
	active := 0
	for _, ch := range dp.shards {
		active += len(ch)
	}
	return PoolStats{
		Dropped:      dp.dropped.Load(),
		Processed:    dp.processed.Load(),
		Dispatched:   dp.delivered.Load(),
		Failed:       dp.failed.Load(),
		ActiveEvents: active,
		Workers:      len(dp.shards),
		BufferSize:   cap(dp.shards[0]),
	}
}
