package xcomm

import (
	"strings"
	"time"
)

// EventType names a lifecycle notification.
type EventType string

const (
	EventStateChange     EventType = "CommunicationMessageStateChangeEvent"
	EventAttributeChange EventType = "CommunicationMessageAttributeValueChangeEvent"
)

// FieldChange holds the before and after value of one attribute.
type FieldChange struct {
	OldValue any `json:"oldValue"`
	NewValue any `json:"newValue"`
}

// Changes maps attribute names to their change.
type Changes map[string]FieldChange

// Fields returns the changed attribute names.
func (c Changes) Fields() []string {
	out := make([]string, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	return out
}

// EventPayload is the body of a notification. StateChange events set State,
// AttributeChange events set ChangedAttributes; both carry the snapshot.
type EventPayload struct {
	CommunicationMessageID string   `json:"communicationMessageId"`
	CommunicationMessage   *Message `json:"communicationMessage,omitempty"`
	State                  State    `json:"state,omitempty"`
	ChangedAttributes      Changes  `json:"changedAttributes,omitempty"`
}

// Event is an immutable lifecycle notification. Its JSON form is the wire
// shape delivered to listeners.
type Event struct {
	EventID   string       `json:"eventId"`
	EventType EventType    `json:"eventType"`
	EventTime time.Time    `json:"eventTime"`
	Payload   EventPayload `json:"payload"`
}

// MessageID returns the id of the message the event is about.
func (e *Event) MessageID() string {
	if e == nil {
		return ""
	}
	return e.Payload.CommunicationMessageID
}

// EventFilter narrows Service.Events / EventStore.List results.
// Zero values match everything; Limit <= 0 means no limit.
type EventFilter struct {
	MessageID string
	EventType EventType
	Since     time.Time
	Limit     int
}

// Match reports whether e satisfies the filter (Limit is applied by callers).
func (f EventFilter) Match(e *Event) bool {
	if e == nil {
		return false
	}
	if f.MessageID != "" && e.MessageID() != f.MessageID {
		return false
	}
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if !f.Since.IsZero() && e.EventTime.Before(f.Since) {
		return false
	}
	return true
}

// Listener is a registered hub subscription.
type Listener struct {
	ID        string    `json:"id"`
	Callback  string    `json:"callback"`
	Query     string    `json:"query,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Wants reports whether the listener's query selects the event type.
// The query is a comma separated list of event type names, optionally
// prefixed with "eventType=". An empty query selects everything.
func (l Listener) Wants(t EventType) bool {
	q := strings.TrimPrefix(strings.TrimSpace(l.Query), "eventType=")
	if q == "" {
		return true
	}
	for _, name := range strings.Split(q, ",") {
		if strings.TrimSpace(name) == string(t) {
			return true
		}
	}
	return false
}
