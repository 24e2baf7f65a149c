package xcomm

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidTransition_Table(t *testing.T) {
	allowed := map[State]map[State]bool{
		StateInitial:    {StateInProgress: true, StateCancelled: true},
		StateInProgress: {StateCompleted: true, StateFailed: true, StateCancelled: true},
		StateFailed:     {StateInProgress: true},
	}
	for _, from := range AllStates() {
		for _, to := range AllStates() {
			assert.Equal(t, allowed[from][to], IsValidTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestIsValidTransition_UnknownStates(t *testing.T) {
	assert.False(t, IsValidTransition("bogus", StateInProgress))
	assert.False(t, IsValidTransition(StateInitial, "bogus"))
	assert.False(t, IsValidTransition("", ""))
}

func TestValidTransitions(t *testing.T) {
	assert.ElementsMatch(t, []State{StateCompleted, StateFailed, StateCancelled}, ValidTransitions(StateInProgress))
	assert.Empty(t, ValidTransitions(StateCompleted))
	assert.Empty(t, ValidTransitions(StateCancelled))
	assert.Empty(t, ValidTransitions("bogus"))

	got := ValidTransitions(StateInitial)
	got[0] = StateCompleted
	assert.False(t, IsValidTransition(StateInitial, StateCompleted), "caller mutation must not leak into the table")
}

func TestState_Predicates(t *testing.T) {
	assert.True(t, StateCompleted.IsTerminal())
	assert.True(t, StateCancelled.IsTerminal())
	assert.False(t, StateFailed.IsTerminal())
	assert.False(t, State("bogus").IsTerminal())
	assert.False(t, State("bogus").IsValid())

	s, err := ParseState("inProgress")
	require.NoError(t, err)
	assert.Equal(t, StateInProgress, s)

	_, err = ParseState("done")
	assert.True(t, errors.Is(err, ErrInvalidState))
}

func TestTransition_Timestamps(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m := &Message{ID: "m1", State: StateInitial}

	require.NoError(t, Transition(m, StateInProgress, t0))
	require.NotNil(t, m.SendTime)
	assert.Equal(t, t0, *m.SendTime)
	assert.Nil(t, m.SendTimeComplete)

	require.NoError(t, Transition(m, StateFailed, t0.Add(time.Second)))
	assert.Nil(t, m.SendTimeComplete)

	t1 := t0.Add(time.Minute)
	require.NoError(t, Transition(m, StateInProgress, t1))
	assert.Equal(t, t0, *m.SendTime, "re-entry keeps the first send time")
	assert.Equal(t, t1, m.UpdatedAt)

	t2 := t1.Add(time.Second)
	require.NoError(t, Transition(m, StateCompleted, t2))
	require.NotNil(t, m.SendTimeComplete)
	assert.Equal(t, t2, *m.SendTimeComplete)
}

func TestTransition_UpdatedAtNeverGoesBack(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m := &Message{ID: "m1", State: StateInitial, UpdatedAt: t0}

	require.NoError(t, Transition(m, StateInProgress, t0.Add(-time.Hour)))
	assert.Equal(t, t0, m.UpdatedAt)
	assert.Equal(t, t0, *m.SendTime)

	assert.Equal(t, t0, Touch(m, t0.Add(-time.Minute)))
	later := t0.Add(time.Minute)
	assert.Equal(t, later, Touch(m, later))
	assert.Equal(t, later, m.UpdatedAt)
}

func TestTransition_Rejected(t *testing.T) {
	m := &Message{ID: "m1", State: StateCompleted}
	err := Transition(m, StateInProgress, time.Now())

	var ise *InvalidStateError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, StateCompleted, ise.From)
	assert.Equal(t, StateInProgress, ise.To)
	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.Equal(t, StateCompleted, m.State)

	assert.Equal(t, ErrNilMessage, Transition(nil, StateInProgress, time.Now()))
}

func TestRetryConfig_NormalizeAndDelays(t *testing.T) {
	assert.Equal(t, DefaultRetryConfig(), RetryConfig{}.Normalize())
	assert.Equal(t, RetryConfig{MaxRetries: 3, InitialDelay: time.Second, DelayMultiplier: 2}, RetryConfig{MaxRetries: -1, DelayMultiplier: -3}.Normalize())

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, DefaultRetryConfig().Delays())
	assert.Equal(t,
		[]time.Duration{100 * time.Millisecond, 150 * time.Millisecond, 225 * time.Millisecond},
		RetryConfig{MaxRetries: 4, InitialDelay: 100 * time.Millisecond, DelayMultiplier: 1.5}.Delays())
	assert.Empty(t, RetryConfig{MaxRetries: 1}.Delays())
	assert.Equal(t, maxDelay, nextDelay(maxDelay, 10))
}

func TestListener_Wants(t *testing.T) {
	assert.True(t, Listener{}.Wants(EventStateChange))
	assert.True(t, Listener{Query: "eventType=CommunicationMessageStateChangeEvent"}.Wants(EventStateChange))
	assert.False(t, Listener{Query: "eventType=CommunicationMessageStateChangeEvent"}.Wants(EventAttributeChange))
	assert.True(t, Listener{Query: "CommunicationMessageStateChangeEvent, CommunicationMessageAttributeValueChangeEvent"}.Wants(EventAttributeChange))
}

func TestMessage_CloneIsDeep(t *testing.T) {
	now := time.Now()
	m := &Message{ID: "m1", SendTime: &now, Receivers: []Party{{ID: "a"}}, Sender: &Party{ID: "s"}}
	c := m.Clone()
	c.Receivers[0].ID = "b"
	c.Sender.ID = "x"
	*c.SendTime = now.Add(time.Hour)
	assert.Equal(t, "a", m.Receivers[0].ID)
	assert.Equal(t, "s", m.Sender.ID)
	assert.Equal(t, now, *m.SendTime)
}
