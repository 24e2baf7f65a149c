package xcomm_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xcomm"
	"github.com/trickstertwo/xcomm/adapter/memory"
)

// recordingSender captures listener payloads per callback in arrival order.
type recordingSender struct {
	mu    sync.Mutex
	calls map[string][][]byte
	fail  map[string]error
}

func newRecordingSender() *recordingSender {
	return &recordingSender{calls: map[string][][]byte{}, fail: map[string]error{}}
}

func (s *recordingSender) Send(_ context.Context, callback string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[callback]; err != nil {
		return err
	}
	s.calls[callback] = append(s.calls[callback], append([]byte(nil), payload...))
	return nil
}

func (s *recordingSender) failOn(callback string, err error) {
	s.mu.Lock()
	s.fail[callback] = err
	s.mu.Unlock()
}

func (s *recordingSender) events(t *testing.T, callback string) []*xcomm.Event {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*xcomm.Event, 0, len(s.calls[callback]))
	for _, p := range s.calls[callback] {
		e, err := xcomm.DecodeEvent(nil, p)
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

func (s *recordingSender) count(callback string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls[callback])
}

type harness struct {
	svc    *xcomm.Service
	stores xcomm.Stores
	sender *recordingSender
}

func newHarness(t *testing.T, opts ...func(*xcomm.Builder)) *harness {
	t.Helper()
	sender := newRecordingSender()
	stores := memory.New(memory.Config{Sender: sender})
	b := xcomm.NewBuilder().WithStores(stores).WithDispatchPool(2, 64)
	for _, o := range opts {
		o(b)
	}
	svc, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return &harness{svc: svc, stores: stores, sender: sender}
}

// seed stores a message directly, bypassing Create so no creation event exists.
func (h *harness) seed(t *testing.T, id string, state xcomm.State) *xcomm.Message {
	t.Helper()
	now := time.Now().UTC()
	m := &xcomm.Message{
		ID:          id,
		State:       state,
		MessageType: xcomm.MessageTypeSMS,
		Content:     "hello",
		TryTimes:    1,
		Receivers:   []xcomm.Party{{ID: "r1", PhoneNumber: "+15550100"}},
		Sender:      &xcomm.Party{ID: "s1", Name: "ops"},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, h.stores.Messages.Insert(context.Background(), m))
	return m
}

func (h *harness) events(t *testing.T, messageID string) []*xcomm.Event {
	t.Helper()
	evs, err := h.svc.Events(context.Background(), xcomm.EventFilter{MessageID: messageID})
	require.NoError(t, err)
	return evs
}

func stateSequence(evs []*xcomm.Event) []xcomm.State {
	var out []xcomm.State
	for _, e := range evs {
		if e.EventType == xcomm.EventStateChange {
			out = append(out, e.Payload.State)
		}
	}
	return out
}

func fastRetry(n int) xcomm.RetryConfig {
	return xcomm.RetryConfig{MaxRetries: n, InitialDelay: time.Millisecond, DelayMultiplier: 2}
}

func validNewMessage() xcomm.NewMessage {
	return xcomm.NewMessage{
		MessageType: xcomm.MessageTypeEmail,
		Content:     "Your order shipped",
		Subject:     "Order update",
		Receivers:   []xcomm.Party{{ID: "c-1", Email: "c1@example.com"}},
		Sender:      &xcomm.Party{ID: "shop", Email: "noreply@example.com"},
	}
}
