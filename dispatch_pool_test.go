package xcomm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRegistry returns one listener and records dispatched event ids.
type stubRegistry struct {
	mu      sync.Mutex
	got     []string
	started chan struct{}
	gate    chan struct{}
}

func (r *stubRegistry) Register(context.Context, string, string) (Listener, error) {
	return Listener{}, nil
}
func (r *stubRegistry) Unregister(context.Context, string) error { return nil }
func (r *stubRegistry) ListenersFor(context.Context, EventType) ([]Listener, error) {
	return []Listener{{ID: "l1", Callback: "cb"}}, nil
}

func (r *stubRegistry) Dispatch(_ context.Context, _ string, payload []byte) error {
	if r.started != nil {
		select {
		case r.started <- struct{}{}:
		default:
		}
	}
	if r.gate != nil {
		<-r.gate
	}
	e, err := DecodeEvent(nil, payload)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.got = append(r.got, e.EventID)
	r.mu.Unlock()
	return nil
}

func (r *stubRegistry) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

func testEvent(id, messageID string) *Event {
	return &Event{
		EventID:   id,
		EventType: EventStateChange,
		EventTime: time.Now(),
		Payload:   EventPayload{CommunicationMessageID: messageID, State: StateInProgress},
	}
}

func TestDispatchPool_PerMessageOrder(t *testing.T) {
	reg := &stubRegistry{}
	dp := NewDispatchPool(reg, nil, nil, DispatchConfig{Workers: 4, BufferSize: 256}, nil)

	var want []string
	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("e-%03d", i)
		want = append(want, id)
		require.True(t, dp.Enqueue(testEvent(id, "same-message")))
	}
	require.NoError(t, dp.Close(2*time.Second))
	assert.Equal(t, want, reg.ids())
	assert.Equal(t, uint64(100), dp.Stats().Processed)
	assert.Equal(t, uint64(100), dp.Stats().Dispatched)
}

func TestDispatchPool_DropsWhenFull(t *testing.T) {
	reg := &stubRegistry{started: make(chan struct{}, 1), gate: make(chan struct{})}
	var dropped []string
	var mu sync.Mutex
	dp := NewDispatchPool(reg, nil, nil, DispatchConfig{Workers: 1, BufferSize: 1}, func(e EngineEvent) {
		if e.Type == DispatchDropped {
			mu.Lock()
			dropped = append(dropped, e.EventID)
			mu.Unlock()
		}
	})

	require.True(t, dp.Enqueue(testEvent("e1", "m")))
	select {
	case <-reg.started:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never picked up the first event")
	}
	require.True(t, dp.Enqueue(testEvent("e2", "m")))
	assert.False(t, dp.Enqueue(testEvent("e3", "m")))

	close(reg.gate)
	require.NoError(t, dp.Close(2*time.Second))

	st := dp.Stats()
	assert.Equal(t, uint64(1), st.Dropped)
	assert.Equal(t, uint64(2), st.Processed)
	assert.Equal(t, []string{"e1", "e2"}, reg.ids())
	mu.Lock()
	assert.Equal(t, []string{"e3"}, dropped)
	mu.Unlock()

	assert.False(t, dp.Enqueue(testEvent("e4", "m")), "closed pool must reject")
}

func TestDispatchPool_CloseTimeout(t *testing.T) {
	reg := &stubRegistry{started: make(chan struct{}, 1), gate: make(chan struct{})}
	dp := NewDispatchPool(reg, nil, nil, DispatchConfig{Workers: 1, BufferSize: 4}, nil)
	require.True(t, dp.Enqueue(testEvent("e1", "m")))
	<-reg.started

	assert.Equal(t, ErrDispatchPoolShutdownTimeout, dp.Close(10*time.Millisecond))
	close(reg.gate)
}

func TestDispatchPool_EnqueueRacingCloseNeverLosesAcceptedEvents(t *testing.T) {
	for round := 0; round < 20; round++ {
		reg := &stubRegistry{}
		dp := NewDispatchPool(reg, nil, nil, DispatchConfig{Workers: 4, BufferSize: 1024}, nil)

		const producers, perProducer = 8, 50
		var accepted atomic.Uint64
		var wg sync.WaitGroup
		start := make(chan struct{})
		for p := 0; p < producers; p++ {
			wg.Add(1)
			go func(p int) {
				defer wg.Done()
				<-start
				for i := 0; i < perProducer; i++ {
					if dp.Enqueue(testEvent(fmt.Sprintf("e-%d-%d", p, i), fmt.Sprintf("m-%d", i%7))) {
						accepted.Add(1)
					}
				}
			}(p)
		}
		close(start)
		require.NoError(t, dp.Close(5*time.Second))
		wg.Wait()

		st := dp.Stats()
		assert.Equal(t, accepted.Load(), st.Processed, "round %d", round)
		assert.Equal(t, uint64(producers*perProducer), st.Processed+st.Dropped, "round %d", round)
		assert.Len(t, reg.ids(), int(accepted.Load()))
	}
}
