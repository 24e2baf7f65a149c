package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/trickstertwo/xcomm"
)

// EventStore appends events to a global stream and a per-message stream.
type EventStore struct {
	client redis.UniversalClient
	prefix string
	maxLen int64
}

func (s *EventStore) Append(ctx context.Context, e *xcomm.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	vals := map[string]any{
		fieldEventID:   e.EventID,
		fieldEventType: string(e.EventType),
		fieldEventTime: e.EventTime.UnixNano(),
		fieldMessageID: e.MessageID(),
		fieldPayload:   payload,
	}

	global := &redis.XAddArgs{Stream: s.prefix + keyEvents, ID: "*", Values: vals}
	// Approximate trimming to keep the global stream bounded
	if s.maxLen > 0 {
		global.MaxLen = s.maxLen
		global.Approx = true
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAdd(ctx, global)
		if id := e.MessageID(); id != "" {
			pipe.XAdd(ctx, &redis.XAddArgs{Stream: s.prefix + keyMessageEvent + id, ID: "*", Values: vals})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis xadd: %w", err)
	}
	return nil
}

// List reads the per-message stream when f.MessageID is set, the global one otherwise.
func (s *EventStore) List(ctx context.Context, f xcomm.EventFilter) ([]*xcomm.Event, error) {
	stream := s.prefix + keyEvents
	if f.MessageID != "" {
		stream = s.prefix + keyMessageEvent + f.MessageID
	}
	entries, err := s.client.XRange(ctx, stream, "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("redis xrange: %w", err)
	}
	out := make([]*xcomm.Event, 0, len(entries))
	for _, x := range entries {
		e, err := decodeEvent(x.Values)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", x.ID, err)
		}
		if !f.Match(e) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func decodeEvent(vals map[string]any) (*xcomm.Event, error) {
	var raw []byte
	switch p := vals[fieldPayload].(type) {
	case []byte:
		raw = p
	case string:
		raw = []byte(p)
	default:
		return nil, fmt.Errorf("missing %s field", fieldPayload)
	}
	var e xcomm.Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if e.EventTime.IsZero() {
		if ns, ok := toInt64(vals[fieldEventTime]); ok && ns > 0 {
			e.EventTime = time.Unix(0, ns)
		}
	}
	return &e, nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}
