package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xcomm"
)

func TestEventStore_Eviction(t *testing.T) {
	s := NewEventStore(2)
	ctx := context.Background()
	for _, id := range []string{"e1", "e2", "e3"} {
		require.NoError(t, s.Append(ctx, &xcomm.Event{EventID: id, Payload: xcomm.EventPayload{CommunicationMessageID: "m"}}))
	}
	assert.Equal(t, 2, s.Len())

	evs, err := s.List(ctx, xcomm.EventFilter{MessageID: "m"})
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, "e2", evs[0].EventID)

	evs, err = s.List(ctx, xcomm.EventFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, evs, 1)
}

func TestMessageStore_CAS(t *testing.T) {
	s := NewMessageStore()
	ctx := context.Background()
	m := &xcomm.Message{ID: "m1", State: xcomm.StateInitial}
	require.NoError(t, s.Insert(ctx, m))
	assert.True(t, errors.Is(s.Insert(ctx, &xcomm.Message{ID: "m1"}), xcomm.ErrConflict))

	a, _ := s.Load(ctx, "m1")
	b, _ := s.Load(ctx, "m1")
	require.NoError(t, xcomm.Transition(a, xcomm.StateInProgress, time.Now()))
	require.NoError(t, s.Save(ctx, a, xcomm.StateInitial))

	require.NoError(t, xcomm.Transition(b, xcomm.StateCancelled, time.Now()))
	assert.True(t, errors.Is(s.Save(ctx, b, xcomm.StateInitial), xcomm.ErrConflict))

	got, err := s.Load(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, xcomm.StateInProgress, got.State)

	// Loaded copies are detached from the stored document.
	got.Content = "mutated"
	again, _ := s.Load(ctx, "m1")
	assert.Empty(t, again.Content)
}

func TestMessageStore_ListAndDelete(t *testing.T) {
	s := NewMessageStore()
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	seed := []*xcomm.Message{
		{ID: "m3", State: xcomm.StateFailed, MessageType: xcomm.MessageTypeSMS, CreatedAt: base.Add(2 * time.Minute)},
		{ID: "m1", State: xcomm.StateInitial, MessageType: xcomm.MessageTypeSMS, CreatedAt: base},
		{ID: "m2", State: xcomm.StateInitial, MessageType: xcomm.MessageTypeEmail, CreatedAt: base.Add(time.Minute)},
		{ID: "m4", State: xcomm.StateInitial, MessageType: xcomm.MessageTypeSMS, CreatedAt: base.Add(3 * time.Minute)},
	}
	for _, m := range seed {
		require.NoError(t, s.Insert(ctx, m))
	}

	all, err := s.List(ctx, xcomm.MessageFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2", "m3", "m4"}, ids(all))

	got, err := s.List(ctx, xcomm.MessageFilter{State: xcomm.StateInitial, MessageType: xcomm.MessageTypeSMS})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m4"}, ids(got))

	got, err = s.List(ctx, xcomm.MessageFilter{State: xcomm.StateInitial, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, ids(got))

	got, err = s.List(ctx, xcomm.MessageFilter{Offset: 3, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"m4"}, ids(got))

	got[0].Content = "mutated"
	again, _ := s.Load(ctx, "m4")
	assert.Empty(t, again.Content)

	require.NoError(t, s.Delete(ctx, "m2"))
	assert.True(t, errors.Is(s.Delete(ctx, "m2"), xcomm.ErrNotFound))
	_, err = s.Load(ctx, "m2")
	assert.True(t, errors.Is(err, xcomm.ErrNotFound))
	assert.Equal(t, 3, s.Len())
}

func ids(ms []*xcomm.Message) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.ID)
	}
	return out
}

func TestConfigFromMap(t *testing.T) {
	c := ConfigFromMap(map[string]any{"max_events": 5, "callback_timeout": "1s"})
	assert.Equal(t, 5, c.MaxEvents)
	assert.Equal(t, time.Second, c.CallbackTimeout)

	st := New(Config{})
	assert.NotNil(t, st.Messages)
	assert.NotNil(t, st.Events)
	assert.NotNil(t, st.Listeners)
}
