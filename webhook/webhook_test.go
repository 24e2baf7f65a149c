package webhook

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xcomm"
)

func sampleEvent(t *testing.T) []byte {
	t.Helper()
	data, err := xcomm.JSONCodec{}.Marshal(&xcomm.Event{
		EventID:   "evt-1",
		EventType: xcomm.EventStateChange,
		EventTime: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Payload:   xcomm.EventPayload{CommunicationMessageID: "msg-1", State: xcomm.StateCompleted},
	})
	require.NoError(t, err)
	return data
}

func TestClient_SendPostsJSON(t *testing.T) {
	var gotCT, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCT = r.Header.Get("Content-Type")
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		gotBody = buf.String()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(Config{Timeout: time.Second})
	payload := sampleEvent(t)
	require.NoError(t, c.Send(context.Background(), srv.URL, payload))
	assert.Equal(t, "application/json", gotCT)
	assert.JSONEq(t, string(payload), gotBody)
}

func TestClient_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient(Config{}).Send(context.Background(), srv.URL, []byte(`{}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCallbackStatus))
}

func TestClient_BreakerOpensPerCallback(t *testing.T) {
	var badHits, goodHits atomic.Int32
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		badHits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		goodHits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer good.Close()

	c := NewClient(Config{ConsecutiveFailures: 2, OpenTimeout: time.Minute})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.Error(t, c.Send(ctx, bad.URL, []byte(`{}`)))
	}
	assert.Equal(t, int32(2), badHits.Load(), "open breaker must short-circuit")
	assert.Equal(t, "open", c.State(bad.URL))

	require.NoError(t, c.Send(ctx, good.URL, []byte(`{}`)))
	assert.Equal(t, int32(1), goodHits.Load())
	assert.Equal(t, "closed", c.State(good.URL))
}

func TestReceiver(t *testing.T) {
	var got *xcomm.Event
	rc := &Receiver{Handler: func(_ context.Context, e *xcomm.Event) error {
		got = e
		return nil
	}}

	rec := httptest.NewRecorder()
	rc.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/listener", bytes.NewReader(sampleEvent(t))))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "evt-1", got.EventID)
	assert.Equal(t, "msg-1", got.MessageID())
	assert.Equal(t, xcomm.StateCompleted, got.Payload.State)

	rec = httptest.NewRecorder()
	rc.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/listener", bytes.NewReader([]byte(`{"nope":1}`))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	rc.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/listener", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	failing := &Receiver{Handler: func(context.Context, *xcomm.Event) error { return errors.New("boom") }}
	rec = httptest.NewRecorder()
	failing.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/listener", bytes.NewReader(sampleEvent(t))))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
