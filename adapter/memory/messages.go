package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/trickstertwo/xcomm"
)

// MessageStore keeps message documents in a map. Documents are cloned on the
// way in and out so callers never share memory with the store.
type MessageStore struct {
	mu   sync.RWMutex
	docs map[string]*xcomm.Message
}

func NewMessageStore() *MessageStore {
	return &MessageStore{docs: make(map[string]*xcomm.Message)}
}

func (s *MessageStore) Load(_ context.Context, id string) (*xcomm.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, xcomm.ErrNotFound)
	}
	return m.Clone(), nil
}

func (s *MessageStore) Insert(_ context.Context, msg *xcomm.Message) error {
	if msg == nil || msg.ID == "" {
		return fmt.Errorf("%w: id is required", xcomm.ErrInvalidMessage)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[msg.ID]; ok {
		return fmt.Errorf("message %s already exists: %w", msg.ID, xcomm.ErrConflict)
	}
	msg.Version = 1
	s.docs[msg.ID] = msg.Clone()
	return nil
}

// Save replaces the document if it is still in state expected at msg.Version.
func (s *MessageStore) Save(_ context.Context, msg *xcomm.Message, expected xcomm.State) error {
	if msg == nil {
		return xcomm.ErrNilMessage
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.docs[msg.ID]
	if !ok {
		return fmt.Errorf("message %s: %w", msg.ID, xcomm.ErrNotFound)
	}
	if cur.State != expected || cur.Version != msg.Version {
		return fmt.Errorf("message %s is %s@%d, expected %s@%d: %w",
			msg.ID, cur.State, cur.Version, expected, msg.Version, xcomm.ErrConflict)
	}
	msg.Version++
	s.docs[msg.ID] = msg.Clone()
	return nil
}

// List returns clones of the messages matching f.
func (s *MessageStore) List(_ context.Context, f xcomm.MessageFilter) ([]*xcomm.Message, error) {
	s.mu.RLock()
	out := make([]*xcomm.Message, 0, len(s.docs))
	for _, m := range s.docs {
		if f.Match(m) {
			out = append(out, m.Clone())
		}
	}
	s.mu.RUnlock()
	return f.Page(out), nil
}

func (s *MessageStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return fmt.Errorf("message %s: %w", id, xcomm.ErrNotFound)
	}
	delete(s.docs, id)
	return nil
}

// Len returns the number of stored messages.
func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
