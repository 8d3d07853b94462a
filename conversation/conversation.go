// Package conversation stores append-only message threads. Every message may
// name a parent message, so the chain of parents from any message back to the
// root reconstructs how a reply came about.
package conversation

import (
	"errors"
	"slices"
	"time"
)

// Role identifies the author class of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ErrUnknownParent is returned when a message names a parent that is not
// part of the same conversation.
var ErrUnknownParent = errors.New("unknown parent message")

// ErrMessageNotFound is returned by Provenance for unknown message ids.
var ErrMessageNotFound = errors.New("message not found")

// Message is one entry of a conversation.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	AgentID   string    `json:"agentId,omitempty"`
	ParentID  string    `json:"parentId,omitempty"`
	NodeID    string    `json:"nodeId,omitempty"`
	TaskID    string    `json:"taskId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is an ordered, append-only list of messages.
type Conversation struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
	Created  time.Time `json:"created"`
	Updated  time.Time `json:"updated"`
}

// Clone returns a copy that shares no memory with c.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.Messages = slices.Clone(c.Messages)
	return &cp
}

// Last returns the most recent message.
func (c *Conversation) Last() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// LastByRole returns the most recent message with the given role.
func (c *Conversation) LastByRole(role Role) (Message, bool) {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == role {
			return c.Messages[i], true
		}
	}
	return Message{}, false
}

// Find returns the message with the given id.
func (c *Conversation) Find(id string) (Message, bool) {
	i := slices.IndexFunc(c.Messages, func(m Message) bool { return m.ID == id })
	if i < 0 {
		return Message{}, false
	}
	return c.Messages[i], true
}

// Store persists conversations.
type Store interface {
	// Get returns a copy of the conversation, creating it lazily.
	Get(id string) (*Conversation, error)
	// Append adds msg, assigning an id and timestamp when missing, and returns
	// the stored message.
	Append(id string, msg Message) (Message, error)
	// Provenance returns the chain of messages from the root to msgID.
	Provenance(id, msgID string) ([]Message, error)
	// IDs lists the known conversation ids in creation order.
	IDs() []string
}
