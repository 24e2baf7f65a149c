package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/trickstertwo/xcomm"
)

// ListenerRegistry keeps hub subscriptions in a hash and dispatches through a Sender.
type ListenerRegistry struct {
	client redis.UniversalClient
	prefix string
	sender xcomm.Sender
}

func (r *ListenerRegistry) key() string { return r.prefix + keyListeners }

func (r *ListenerRegistry) Register(ctx context.Context, callback, query string) (xcomm.Listener, error) {
	l := xcomm.Listener{ID: uuid.NewString(), Callback: callback, Query: query, CreatedAt: time.Now().UTC()}
	data, err := json.Marshal(l)
	if err != nil {
		return xcomm.Listener{}, fmt.Errorf("encode listener: %w", err)
	}
	if err := r.client.HSet(ctx, r.key(), l.ID, data).Err(); err != nil {
		return xcomm.Listener{}, fmt.Errorf("redis hset: %w", err)
	}
	return l, nil
}

func (r *ListenerRegistry) Unregister(ctx context.Context, id string) error {
	n, err := r.client.HDel(ctx, r.key(), id).Result()
	if err != nil {
		return fmt.Errorf("redis hdel: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("listener %s: %w", id, xcomm.ErrNotFound)
	}
	return nil
}

func (r *ListenerRegistry) ListenersFor(ctx context.Context, t xcomm.EventType) ([]xcomm.Listener, error) {
	all, err := r.client.HGetAll(ctx, r.key()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	out := make([]xcomm.Listener, 0, len(all))
	for id, raw := range all {
		var l xcomm.Listener
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			return nil, fmt.Errorf("decode listener %s: %w", id, err)
		}
		if l.Wants(t) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *ListenerRegistry) Dispatch(ctx context.Context, callback string, payload []byte) error {
	return r.sender.Send(ctx, callback, payload)
}
