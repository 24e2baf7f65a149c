package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/trickstertwo/xcomm"
)

// ListenerRegistry keeps hub subscriptions in memory and dispatches through a Sender.
type ListenerRegistry struct {
	mu        sync.RWMutex
	listeners map[string]xcomm.Listener
	sender    xcomm.Sender
}

func NewListenerRegistry(sender xcomm.Sender) *ListenerRegistry {
	return &ListenerRegistry{listeners: make(map[string]xcomm.Listener), sender: sender}
}

func (r *ListenerRegistry) Register(_ context.Context, callback, query string) (xcomm.Listener, error) {
	l := xcomm.Listener{ID: uuid.NewString(), Callback: callback, Query: query, CreatedAt: time.Now().UTC()}
	r.mu.Lock()
	r.listeners[l.ID] = l
	r.mu.Unlock()
	return l, nil
}

func (r *ListenerRegistry) Unregister(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.listeners[id]; !ok {
		return fmt.Errorf("listener %s: %w", id, xcomm.ErrNotFound)
	}
	delete(r.listeners, id)
	return nil
}

// ListenersFor returns the listeners interested in t, oldest registration first.
func (r *ListenerRegistry) ListenersFor(_ context.Context, t xcomm.EventType) ([]xcomm.Listener, error) {
	r.mu.RLock()
	out := make([]xcomm.Listener, 0, len(r.listeners))
	for _, l := range r.listeners {
		if l.Wants(t) {
			out = append(out, l)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *ListenerRegistry) Dispatch(ctx context.Context, callback string, payload []byte) error {
	if r.sender == nil {
		return fmt.Errorf("no sender configured for %s", callback)
	}
	return r.sender.Send(ctx, callback, payload)
}
