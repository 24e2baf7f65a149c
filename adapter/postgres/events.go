package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/trickstertwo/xcomm"
)

// EventStore appends events to xcomm_events.
type EventStore struct {
	db Querier
}

func (s *EventStore) Append(ctx context.Context, e *xcomm.Event) error {
	const sql = `
		INSERT INTO xcomm_events (event_id, event_type, message_id, event_time, payload)
		VALUES ($1, $2, $3, $4, $5)
	`
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := s.db.Exec(ctx, sql, e.EventID, string(e.EventType), e.MessageID(), e.EventTime, payload); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// List returns matching events in append order.
func (s *EventStore) List(ctx context.Context, f xcomm.EventFilter) ([]*xcomm.Event, error) {
	sql, args := listQuery(f)
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []*xcomm.Event
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var e xcomm.Event
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func listQuery(f xcomm.EventFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.MessageID != "" {
		add("message_id = $%d", f.MessageID)
	}
	if f.EventType != "" {
		add("event_type = $%d", string(f.EventType))
	}
	if !f.Since.IsZero() {
		add("event_time >= $%d", f.Since)
	}

	var b strings.Builder
	b.WriteString("SELECT payload FROM xcomm_events")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY seq ASC")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}
