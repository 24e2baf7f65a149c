package xcomm

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// MessageType is the delivery channel of a communication message.
type MessageType string

const (
	MessageTypeSMS           MessageType = "SMS"
	MessageTypeEmail         MessageType = "Email"
	MessageTypeMobileAppPush MessageType = "MobileAppPush"
)

// IsValid reports whether t is a supported channel.
func (t MessageType) IsValid() bool {
	switch t {
	case MessageTypeSMS, MessageTypeEmail, MessageTypeMobileAppPush:
		return true
	}
	return false
}

// Party is a sender or receiver of a message.
type Party struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	AppUserID   string `json:"appUserId,omitempty"`
	IPAddress   string `json:"ipAddress,omitempty"`
}

type Attachment struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

type Characteristic struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	ValueType string `json:"valueType,omitempty"`
}

// Message is a communication message document.
// State is only changed through Transition; Version and Attempts are
// managed by stores and the engine respectively.
//
// TryTimes is advisory: it records the attempt budget the caller asked for
// and is stored and patchable, but the engine bounds attempts with the
// RetryConfig passed to Deliver. Attempts holds what was actually made.
type Message struct {
	ID                string           `json:"id"`
	State             State            `json:"state"`
	MessageType       MessageType      `json:"messageType"`
	Content           string           `json:"content"`
	Subject           string           `json:"subject,omitempty"`
	Description       string           `json:"description,omitempty"`
	Priority          string           `json:"priority,omitempty"`
	LogFlag           bool             `json:"logFlag"`
	TryTimes          int              `json:"tryTimes"`
	Attempts          int              `json:"attempts"`
	ScheduledSendTime *time.Time       `json:"scheduledSendTime,omitempty"`
	SendTime          *time.Time       `json:"sendTime,omitempty"`
	SendTimeComplete  *time.Time       `json:"sendTimeComplete,omitempty"`
	Receivers         []Party          `json:"receiver"`
	Sender            *Party           `json:"sender,omitempty"`
	Attachments       []Attachment     `json:"attachment,omitempty"`
	Characteristics   []Characteristic `json:"characteristic,omitempty"`
	Version           int64            `json:"version"`
	CreatedAt         time.Time        `json:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

// Clone returns a deep copy of m. Events carry clones so later mutations
// never leak into already published snapshots.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	c.ScheduledSendTime = cloneTime(m.ScheduledSendTime)
	c.SendTime = cloneTime(m.SendTime)
	c.SendTimeComplete = cloneTime(m.SendTimeComplete)
	if m.Receivers != nil {
		c.Receivers = append([]Party(nil), m.Receivers...)
	}
	if m.Sender != nil {
		s := *m.Sender
		c.Sender = &s
	}
	if m.Attachments != nil {
		c.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	if m.Characteristics != nil {
		c.Characteristics = append([]Characteristic(nil), m.Characteristics...)
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// MessageFilter narrows MessageStore.List results. Zero values match
// everything; Limit <= 0 means no limit. Results are ordered oldest first.
type MessageFilter struct {
	State       State
	MessageType MessageType
	Offset      int
	Limit       int
}

// Match reports whether m satisfies the filter (Offset and Limit are applied
// by Page).
func (f MessageFilter) Match(m *Message) bool {
	if m == nil {
		return false
	}
	if f.State != "" && m.State != f.State {
		return false
	}
	if f.MessageType != "" && m.MessageType != f.MessageType {
		return false
	}
	return true
}

// Page sorts matched messages by CreatedAt then ID and applies Offset and
// Limit. ms is reordered in place.
func (f MessageFilter) Page(ms []*Message) []*Message {
	sort.Slice(ms, func(i, j int) bool {
		if !ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].CreatedAt.Before(ms[j].CreatedAt)
		}
		return ms[i].ID < ms[j].ID
	})
	if f.Offset > 0 {
		if f.Offset >= len(ms) {
			return ms[:0]
		}
		ms = ms[f.Offset:]
	}
	if f.Limit > 0 && len(ms) > f.Limit {
		ms = ms[:f.Limit]
	}
	return ms
}

// NewMessage carries the caller supplied fields for Service.Create.
type NewMessage struct {
	MessageType       MessageType      `json:"messageType"`
	Content           string           `json:"content"`
	Subject           string           `json:"subject,omitempty"`
	Description       string           `json:"description,omitempty"`
	Priority          string           `json:"priority,omitempty"`
	LogFlag           bool             `json:"logFlag"`
	TryTimes          int              `json:"tryTimes,omitempty"`
	ScheduledSendTime *time.Time       `json:"scheduledSendTime,omitempty"`
	Receivers         []Party          `json:"receiver"`
	Sender            *Party           `json:"sender,omitempty"`
	Attachments       []Attachment     `json:"attachment,omitempty"`
	Characteristics   []Characteristic `json:"characteristic,omitempty"`
}

// Validate checks the fields required to create a message.
func (n NewMessage) Validate() error {
	var problems []string
	if strings.TrimSpace(n.Content) == "" {
		problems = append(problems, "content is required")
	}
	if !n.MessageType.IsValid() {
		problems = append(problems, fmt.Sprintf("messageType %q is not one of SMS, Email, MobileAppPush", n.MessageType))
	}
	if len(n.Receivers) == 0 {
		problems = append(problems, "at least one receiver is required")
	}
	if n.Sender == nil {
		problems = append(problems, "sender is required")
	}
	if n.TryTimes < 0 {
		problems = append(problems, "tryTimes must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidMessage, strings.Join(problems, "; "))
	}
	return nil
}

func (n NewMessage) build(id string, now time.Time) *Message {
	try := n.TryTimes
	if try == 0 {
		try = 1
	}
	m := &Message{
		ID:                id,
		State:             StateInitial,
		MessageType:       n.MessageType,
		Content:           n.Content,
		Subject:           n.Subject,
		Description:       n.Description,
		Priority:          n.Priority,
		LogFlag:           n.LogFlag,
		TryTimes:          try,
		ScheduledSendTime: cloneTime(n.ScheduledSendTime),
		Receivers:         append([]Party(nil), n.Receivers...),
		Attachments:       append([]Attachment(nil), n.Attachments...),
		Characteristics:   append([]Characteristic(nil), n.Characteristics...),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if n.Sender != nil {
		s := *n.Sender
		m.Sender = &s
	}
	return m
}
