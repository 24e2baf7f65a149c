package memory

import (
	"context"
	"sync"

	"github.com/trickstertwo/xcomm"
)

// EventStore is an append-only in-memory event log.
type EventStore struct {
	mu     sync.RWMutex
	events []*xcomm.Event
	max    int
}

// NewEventStore returns a log retaining at most max events (0 = unbounded).
func NewEventStore(max int) *EventStore {
	return &EventStore{max: max}
}

func (s *EventStore) Append(_ context.Context, e *xcomm.Event) error {
	if e == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	if s.max > 0 && len(s.events) > s.max {
		s.events = append(s.events[:0:0], s.events[len(s.events)-s.max:]...)
	}
	return nil
}

// List returns matching events in append order.
func (s *EventStore) List(_ context.Context, f xcomm.EventFilter) ([]*xcomm.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*xcomm.Event, 0)
	for _, e := range s.events {
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

// Len returns the number of retained events.
func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
