package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStore_GetCreatesLazily(t *testing.T) {
	s := NewInMemoryStore()

	conv, err := s.Get("c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", conv.ID)
	assert.Empty(t, conv.Messages)
	assert.False(t, conv.Created.IsZero())
	assert.Equal(t, []string{"c1"}, s.IDs())
}

func TestInMemoryStore_AppendAndProvenance(t *testing.T) {
	s := NewInMemoryStore()

	q, err := s.Append("c1", Message{Role: RoleUser, Content: "build a todo app"})
	require.NoError(t, err)
	assert.NotEmpty(t, q.ID)
	assert.False(t, q.Timestamp.IsZero())

	a, err := s.Append("c1", Message{Role: RoleAssistant, Content: "plan", AgentID: "planner", ParentID: q.ID})
	require.NoError(t, err)

	q2, err := s.Append("c1", Message{Role: RoleUser, Content: "add auth", ParentID: a.ID})
	require.NoError(t, err)

	chain, err := s.Provenance("c1", q2.ID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, []string{q.ID, a.ID, q2.ID}, []string{chain[0].ID, chain[1].ID, chain[2].ID})

	_, err = s.Append("c1", Message{Content: "orphan", ParentID: "nope"})
	assert.ErrorIs(t, err, ErrUnknownParent)

	_, err = s.Provenance("c1", "nope")
	assert.ErrorIs(t, err, ErrMessageNotFound)
	_, err = s.Provenance("other", q.ID)
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestInMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Append("c1", Message{Content: "hi"})
	require.NoError(t, err)

	conv, _ := s.Get("c1")
	conv.Messages[0].Content = "mutated"
	conv.Messages = append(conv.Messages, Message{Content: "extra"})

	again, _ := s.Get("c1")
	require.Len(t, again.Messages, 1)
	assert.Equal(t, "hi", again.Messages[0].Content)

	last, ok := again.Last()
	assert.True(t, ok)
	assert.Equal(t, RoleUser, last.Role)
	_, ok = again.LastByRole(RoleAssistant)
	assert.False(t, ok)
}
