package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/trickstertwo/xcomm"
)

// ListenerRegistry keeps hub subscriptions in xcomm_listeners.
type ListenerRegistry struct {
	db     Querier
	sender xcomm.Sender
}

func (r *ListenerRegistry) Register(ctx context.Context, callback, query string) (xcomm.Listener, error) {
	const sql = `INSERT INTO xcomm_listeners (id, callback, query, created_at) VALUES ($1, $2, $3, $4)`

	l := xcomm.Listener{ID: uuid.NewString(), Callback: callback, Query: query, CreatedAt: time.Now().UTC()}
	if _, err := r.db.Exec(ctx, sql, l.ID, l.Callback, l.Query, l.CreatedAt); err != nil {
		return xcomm.Listener{}, fmt.Errorf("insert listener: %w", err)
	}
	return l, nil
}

func (r *ListenerRegistry) Unregister(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM xcomm_listeners WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete listener: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("listener %s: %w", id, xcomm.ErrNotFound)
	}
	return nil
}

// ListenersFor filters in Go since queries are free-form.
func (r *ListenerRegistry) ListenersFor(ctx context.Context, t xcomm.EventType) ([]xcomm.Listener, error) {
	const sql = `SELECT id, callback, query, created_at FROM xcomm_listeners ORDER BY created_at ASC, id ASC`

	rows, err := r.db.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query listeners: %w", err)
	}
	defer rows.Close()

	var out []xcomm.Listener
	for rows.Next() {
		var l xcomm.Listener
		if err := rows.Scan(&l.ID, &l.Callback, &l.Query, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan listener: %w", err)
		}
		if l.Wants(t) {
			out = append(out, l)
		}
	}
	return out, rows.Err()
}

func (r *ListenerRegistry) Dispatch(ctx context.Context, callback string, payload []byte) error {
	if r.sender == nil {
		return fmt.Errorf("no sender configured for %s", callback)
	}
	return r.sender.Send(ctx, callback, payload)
}
