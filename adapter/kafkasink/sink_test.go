package kafkasink

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xcomm"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestSink_Append(t *testing.T) {
	w := &fakeWriter{}
	s := NewWithWriter(w)
	at := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)

	err := s.Append(context.Background(), &xcomm.Event{
		EventID:   "e1",
		EventType: xcomm.EventAttributeChange,
		EventTime: at,
		Payload: xcomm.EventPayload{
			CommunicationMessageID: "m7",
			ChangedAttributes:      xcomm.Changes{"subject": {OldValue: "a", NewValue: "b"}},
		},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	m := w.msgs[0]
	assert.Equal(t, "m7", string(m.Key))
	assert.Equal(t, at, m.Time)
	require.Len(t, m.Headers, 1)
	assert.Equal(t, string(xcomm.EventAttributeChange), string(m.Headers[0].Value))

	var decoded xcomm.Event
	require.NoError(t, json.Unmarshal(m.Value, &decoded))
	assert.Equal(t, "e1", decoded.EventID)
	assert.Contains(t, decoded.Payload.ChangedAttributes, "subject")

	require.NoError(t, s.Close())
	assert.True(t, w.closed)
}

func TestSink_AppendError(t *testing.T) {
	boom := errors.New("broker down")
	s := NewWithWriter(&fakeWriter{err: boom})
	err := s.Append(context.Background(), &xcomm.Event{EventID: "e"})
	assert.ErrorIs(t, err, boom)
}

func TestNew_Validates(t *testing.T) {
	_, err := New(Config{Topic: "t"})
	assert.Error(t, err)
	s, err := New(Config{Brokers: []string{"localhost:9092"}, Topic: "xcomm.events"})
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}
