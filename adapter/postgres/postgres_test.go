package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xcomm"
)

func TestListQuery(t *testing.T) {
	sql, args := listQuery(xcomm.EventFilter{})
	assert.Equal(t, "SELECT payload FROM xcomm_events ORDER BY seq ASC", sql)
	assert.Empty(t, args)

	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sql, args = listQuery(xcomm.EventFilter{MessageID: "m1", EventType: xcomm.EventStateChange, Since: since, Limit: 5})
	assert.Equal(t, "SELECT payload FROM xcomm_events WHERE message_id = $1 AND event_type = $2 AND event_time >= $3 ORDER BY seq ASC LIMIT $4", sql)
	assert.Equal(t, []any{"m1", string(xcomm.EventStateChange), since, 5}, args)
}

func TestMessageListQuery(t *testing.T) {
	sql, args := messageListQuery(xcomm.MessageFilter{})
	assert.Equal(t, "SELECT doc, version FROM xcomm_messages ORDER BY created_at ASC, id ASC", sql)
	assert.Empty(t, args)

	sql, args = messageListQuery(xcomm.MessageFilter{State: xcomm.StateFailed, MessageType: xcomm.MessageTypeSMS, Offset: 10, Limit: 5})
	assert.Equal(t, "SELECT doc, version FROM xcomm_messages WHERE state = $1 AND doc->>'messageType' = $2 ORDER BY created_at ASC, id ASC LIMIT $3 OFFSET $4", sql)
	assert.Equal(t, []any{"failed", "SMS", 5, 10}, args)
}

func TestConfigFromMap(t *testing.T) {
	c := ConfigFromMap(map[string]any{"dsn": "postgres://x", "max_conns": 4, "migrate": false, "callback_timeout": "2s"})
	assert.Equal(t, "postgres://x", c.DSN)
	assert.Equal(t, int32(4), c.MaxConns)
	assert.False(t, c.Migrate)
	assert.Equal(t, 2*time.Second, c.CallbackTimeout)
	assert.NoError(t, c.Validate())
	assert.Error(t, Defaults().Validate())
}

// openTestDB connects to POSTGRES_DSN or skips.
func openTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool))
	return pool
}

func TestMessageStore_CAS(t *testing.T) {
	pool := openTestDB(t)
	st := New(pool, Defaults())
	ctx := context.Background()

	now := time.Now().UTC()
	m := &xcomm.Message{
		ID:          uuid.NewString(),
		State:       xcomm.StateInitial,
		MessageType: xcomm.MessageTypeEmail,
		Content:     "welcome",
		TryTimes:    1,
		Receivers:   []xcomm.Party{{Email: "a@example.com"}},
		Sender:      &xcomm.Party{Name: "crm"},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, st.Messages.Insert(ctx, m))
	assert.True(t, errors.Is(st.Messages.Insert(ctx, m.Clone()), xcomm.ErrConflict))

	a, err := st.Messages.Load(ctx, m.ID)
	require.NoError(t, err)
	b, err := st.Messages.Load(ctx, m.ID)
	require.NoError(t, err)

	require.NoError(t, xcomm.Transition(a, xcomm.StateInProgress, time.Now()))
	require.NoError(t, st.Messages.Save(ctx, a, xcomm.StateInitial))
	assert.Equal(t, int64(2), a.Version)

	require.NoError(t, xcomm.Transition(b, xcomm.StateCancelled, time.Now()))
	assert.True(t, errors.Is(st.Messages.Save(ctx, b, xcomm.StateInitial), xcomm.ErrConflict))

	_, err = st.Messages.Load(ctx, uuid.NewString())
	assert.True(t, errors.Is(err, xcomm.ErrNotFound))
}

func TestMessageStore_ListAndDelete(t *testing.T) {
	pool := openTestDB(t)
	st := New(pool, Defaults())
	ctx := context.Background()

	// Other rows may share the table; only the relative order of ours is checked.
	base := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(time.Now().UnixNano() % int64(time.Hour)))
	var created []string
	for i := 0; i < 3; i++ {
		m := &xcomm.Message{
			ID:          uuid.NewString(),
			State:       xcomm.StateCancelled,
			MessageType: xcomm.MessageTypeMobileAppPush,
			Content:     "push",
			TryTimes:    1,
			Receivers:   []xcomm.Party{{AppUserID: "u1"}},
			Sender:      &xcomm.Party{Name: "app"},
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
			UpdatedAt:   base,
		}
		require.NoError(t, st.Messages.Insert(ctx, m))
		created = append(created, m.ID)
	}
	t.Cleanup(func() {
		for _, id := range created {
			_ = st.Messages.Delete(context.Background(), id)
		}
	})

	got, err := st.Messages.List(ctx, xcomm.MessageFilter{State: xcomm.StateCancelled, MessageType: xcomm.MessageTypeMobileAppPush})
	require.NoError(t, err)
	var ours []string
	for _, m := range got {
		for _, id := range created {
			if m.ID == id {
				ours = append(ours, id)
				assert.Equal(t, int64(1), m.Version)
			}
		}
	}
	assert.Equal(t, created, ours)

	require.NoError(t, st.Messages.Delete(ctx, created[1]))
	assert.True(t, errors.Is(st.Messages.Delete(ctx, created[1]), xcomm.ErrNotFound))
	_, err = st.Messages.Load(ctx, created[1])
	assert.True(t, errors.Is(err, xcomm.ErrNotFound))
}

func TestEventStoreAndListeners(t *testing.T) {
	pool := openTestDB(t)
	st := New(pool, Defaults())
	ctx := context.Background()
	id := uuid.NewString()

	for _, typ := range []xcomm.EventType{xcomm.EventStateChange, xcomm.EventAttributeChange} {
		require.NoError(t, st.Events.Append(ctx, &xcomm.Event{
			EventID:   uuid.NewString(),
			EventType: typ,
			EventTime: time.Now().UTC(),
			Payload:   xcomm.EventPayload{CommunicationMessageID: id},
		}))
	}
	evs, err := st.Events.(xcomm.EventLister).List(ctx, xcomm.EventFilter{MessageID: id})
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, xcomm.EventStateChange, evs[0].EventType)

	l, err := st.Listeners.Register(ctx, "http://hook/"+id, "eventType="+string(xcomm.EventAttributeChange))
	require.NoError(t, err)
	ls, err := st.Listeners.ListenersFor(ctx, xcomm.EventStateChange)
	require.NoError(t, err)
	for _, x := range ls {
		assert.NotEqual(t, l.ID, x.ID)
	}
	require.NoError(t, st.Listeners.Unregister(ctx, l.ID))
	assert.True(t, errors.Is(st.Listeners.Unregister(ctx, l.ID), xcomm.ErrNotFound))
}
