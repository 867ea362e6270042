package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilkoid/poncho-relay/pkg/llm"
)

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore(3)
	s.Append("a", llm.Message{Role: llm.RoleUser, Content: "1"}, llm.Message{Role: llm.RoleAssistant, Content: "2"})
	s.Append("a", llm.Message{Role: llm.RoleUser, Content: "3"}, llm.Message{Role: llm.RoleAssistant, Content: "4"})
	s.Append("b")

	h := s.History("a")
	require.Len(t, h, 3)
	assert.Equal(t, "2", h[0].Content)
	assert.Equal(t, []string{"a"}, s.Conversations())

	h[0].Content = "mutated"
	assert.Equal(t, "2", s.History("a")[0].Content, "History returns a copy")

	last, err := Last(s, "a")
	require.NoError(t, err)
	assert.Equal(t, "4", last.Content)
	_, err = Last(s, "missing")
	assert.ErrorIs(t, err, ErrConversationNotFound)

	s.Replace("a", nil)
	assert.Empty(t, s.Conversations())
}

func TestMemoryStore_ResetAndUnbounded(t *testing.T) {
	s := NewMemoryStore(0)
	for i := 0; i < 10; i++ {
		s.Append("x", llm.Message{Role: llm.RoleUser, Content: "m"})
	}
	assert.Len(t, s.History("x"), 10)
	assert.Equal(t, 10, s.Reset("x"))
	assert.Equal(t, 0, s.Reset("x"))
}
