package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/trickstertwo/xcomm"
)

// MessageStore keeps messages in xcomm_messages.
type MessageStore struct {
	db Querier
}

func (s *MessageStore) Load(ctx context.Context, id string) (*xcomm.Message, error) {
	const sql = `SELECT doc, version FROM xcomm_messages WHERE id = $1`

	var (
		doc     []byte
		version int64
	)
	err := s.db.QueryRow(ctx, sql, id).Scan(&doc, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", id, xcomm.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select message: %w", err)
	}
	var m xcomm.Message
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, fmt.Errorf("decode message %s: %w", id, err)
	}
	m.Version = version
	return &m, nil
}

func (s *MessageStore) Insert(ctx context.Context, msg *xcomm.Message) error {
	const sql = `
		INSERT INTO xcomm_messages (id, state, version, doc, created_at, updated_at)
		VALUES ($1, $2, 1, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`
	if msg == nil || msg.ID == "" {
		return fmt.Errorf("%w: id is required", xcomm.ErrInvalidMessage)
	}
	doc := msg.Clone()
	doc.Version = 1
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	tag, err := s.db.Exec(ctx, sql, msg.ID, string(msg.State), data, msg.CreatedAt, msg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message %s already exists: %w", msg.ID, xcomm.ErrConflict)
	}
	msg.Version = 1
	return nil
}

// Save updates the row only while it still holds the expected state and
// msg.Version. A miss is resolved to ErrNotFound or ErrConflict.
func (s *MessageStore) Save(ctx context.Context, msg *xcomm.Message, expected xcomm.State) error {
	const sql = `
		UPDATE xcomm_messages
		SET state = $2, version = version + 1, doc = $3, updated_at = $4
		WHERE id = $1 AND state = $5 AND version = $6
	`
	if msg == nil {
		return xcomm.ErrNilMessage
	}
	next := msg.Clone()
	next.Version = msg.Version + 1
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	tag, err := s.db.Exec(ctx, sql, msg.ID, string(msg.State), data, msg.UpdatedAt, string(expected), msg.Version)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM xcomm_messages WHERE id = $1)`, msg.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check message: %w", err)
		}
		if !exists {
			return fmt.Errorf("message %s: %w", msg.ID, xcomm.ErrNotFound)
		}
		return fmt.Errorf("message %s changed since version %d: %w", msg.ID, msg.Version, xcomm.ErrConflict)
	}
	msg.Version = next.Version
	return nil
}

// List returns matching messages ordered by creation time.
func (s *MessageStore) List(ctx context.Context, f xcomm.MessageFilter) ([]*xcomm.Message, error) {
	sql, args := messageListQuery(f)
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []*xcomm.Message
	for rows.Next() {
		var (
			doc     []byte
			version int64
		)
		if err := rows.Scan(&doc, &version); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		var m xcomm.Message
		if err := json.Unmarshal(doc, &m); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		m.Version = version
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *MessageStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM xcomm_messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message %s: %w", id, xcomm.ErrNotFound)
	}
	return nil
}

func messageListQuery(f xcomm.MessageFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.State != "" {
		add("state = $%d", string(f.State))
	}
	if f.MessageType != "" {
		add("doc->>'messageType' = $%d", string(f.MessageType))
	}

	var b strings.Builder
	b.WriteString("SELECT doc, version FROM xcomm_messages")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at ASC, id ASC")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}
	return b.String(), args
}
