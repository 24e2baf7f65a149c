// Package rueidisstream mirrors lifecycle events into a Redis stream through
// rueidis. It is meant as an event sink next to a primary event store
// (Builder.WithEventSink) but also implements xcomm.EventLister.
package rueidisstream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/rueidis"
	"github.com/trickstertwo/xcomm"
)

// DefaultStream is the stream key used when Config.Stream is empty.
const DefaultStream = "xcomm:events:audit"

const (
	fieldEventType = "event_type"
	fieldMessageID = "message_id"
	fieldPayload   = "payload"
)

type Config struct {
	Addr   []string
	Stream string
}

// Sink appends events to one stream.
type Sink struct {
	client rueidis.Client
	stream string
	owned  bool
}

// Dial creates a rueidis client for cfg.Addr. Close releases it.
func Dial(cfg Config) (*Sink, error) {
	if len(cfg.Addr) == 0 {
		return nil, fmt.Errorf("rueidisstream: addr required")
	}
	client, err := rueidis.NewClient(rueidis.ClientOption{InitAddress: cfg.Addr})
	if err != nil {
		return nil, fmt.Errorf("rueidis client: %w", err)
	}
	s := New(client, cfg.Stream)
	s.owned = true
	return s, nil
}

// New wraps an existing client. The caller owns the client.
func New(client rueidis.Client, stream string) *Sink {
	if stream == "" {
		stream = DefaultStream
	}
	return &Sink{client: client, stream: stream}
}

func (s *Sink) Append(ctx context.Context, e *xcomm.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	cmd := s.client.B().Xadd().Key(s.stream).Id("*").
		FieldValue().FieldValue(fieldEventType, string(e.EventType)).
		FieldValue(fieldMessageID, e.MessageID()).
		FieldValue(fieldPayload, string(payload)).
		Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// List scans the whole stream and applies f.
func (s *Sink) List(ctx context.Context, f xcomm.EventFilter) ([]*xcomm.Event, error) {
	cmd := s.client.B().Xrange().Key(s.stream).Start("-").End("+").Build()
	entries, err := s.client.Do(ctx, cmd).AsXRange()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("xrange %s: %w", s.stream, err)
	}
	out := make([]*xcomm.Event, 0, len(entries))
	for _, x := range entries {
		e, err := decodeEntry(x.FieldValues)
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

func (s *Sink) Close() {
	if s.owned {
		s.client.Close()
	}
}

func decodeEntry(fields map[string]string) (*xcomm.Event, error) {
	raw, ok := fields[fieldPayload]
	if !ok {
		return nil, fmt.Errorf("missing %s field", fieldPayload)
	}
	var e xcomm.Event
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &e, nil
}
