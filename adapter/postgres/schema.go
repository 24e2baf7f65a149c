package postgres

import (
	"context"
	"fmt"
)

// Schema creates the tables used by the stores. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS xcomm_messages (
	id         TEXT PRIMARY KEY,
	state      TEXT NOT NULL,
	version    BIGINT NOT NULL,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS xcomm_messages_state_idx ON xcomm_messages (state, created_at);

CREATE TABLE IF NOT EXISTS xcomm_events (
	seq        BIGSERIAL PRIMARY KEY,
	event_id   TEXT NOT NULL UNIQUE,
	event_type TEXT NOT NULL,
	message_id TEXT NOT NULL,
	event_time TIMESTAMPTZ NOT NULL,
	payload    JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS xcomm_events_message_idx ON xcomm_events (message_id, seq);

CREATE TABLE IF NOT EXISTS xcomm_listeners (
	id         TEXT PRIMARY KEY,
	callback   TEXT NOT NULL,
	query      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
`

// Migrate applies Schema.
func Migrate(ctx context.Context, db Querier) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}
	return nil
}
