package conversation

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/codai-ecosystem/codai/core"
)

// InMemoryStore is a volatile Store keeping conversations in a process local
// map. It is safe for concurrent access. Returned conversations are cloned to
// prevent external mutation of internal state.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	order         []string
	clock         func() time.Time
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory conversation store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{conversations: make(map[string]*Conversation), clock: core.Now}
}

// Get returns an existing conversation (clone) or creates a new one lazily.
func (s *InMemoryStore) Get(id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.getLocked(id).Clone(), nil
}

// Append adds a message. A non-empty ParentID must refer to a message already
// in the conversation.
func (s *InMemoryStore) Append(id string, msg Message) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.getLocked(id)

	if msg.ParentID != "" {
		if _, ok := conv.Find(msg.ParentID); !ok {
			return Message{}, fmt.Errorf("%w: %s in conversation %s", ErrUnknownParent, msg.ParentID, id)
		}
	}

	if msg.ID == "" {
		msg.ID = core.NewID()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.clock()
	}
	if msg.Role == "" {
		msg.Role = RoleUser
	}

	conv.Messages = append(conv.Messages, msg)
	conv.Updated = msg.Timestamp

	return msg, nil
}

// Provenance walks parent links from msgID back to the root and returns the
// chain oldest first.
func (s *InMemoryStore) Provenance(id, msgID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, msgID)
	}

	var chain []Message
	seen := map[string]bool{}

	for cur := msgID; cur != "" && !seen[cur]; {
		m, ok := conv.Find(cur)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, cur)
		}
		seen[cur] = true
		chain = append(chain, m)
		cur = m.ParentID
	}

	slices.Reverse(chain)

	return chain, nil
}

// IDs lists the known conversation ids in creation order.
func (s *InMemoryStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.order)
}

// getLocked returns the stored conversation, creating it if needed; caller
// must hold the write lock.
func (s *InMemoryStore) getLocked(id string) *Conversation {
	if conv, ok := s.conversations[id]; ok {
		return conv
	}

	now := s.clock()
	conv := &Conversation{ID: id, Messages: []Message{}, Created: now, Updated: now}
	s.conversations[id] = conv
	s.order = append(s.order, id)

	return conv
}
