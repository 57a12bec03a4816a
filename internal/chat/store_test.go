// ABOUTME: Tests for the in-memory session store
// ABOUTME: Covers append/mutate/reset semantics and the streaming invariant

package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_NewStoreStartsEmpty(t *testing.T) {
	s := NewStore()

	assert.NotEmpty(t, s.SessionID())
	assert.Empty(t, s.Messages())
	assert.False(t, s.IsStreaming())
}

func TestStore_AppendPreservesOrder(t *testing.T) {
	s := NewStore()

	require.NoError(t, s.Append(Message{ID: "m1", Role: RoleUser, Content: "hi"}))
	require.NoError(t, s.Append(Message{ID: "m2", Role: RoleAssistant, Content: ""}))

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, "m2", msgs[1].ID)
}

func TestStore_AppendRejectsDuplicateID(t *testing.T) {
	s := NewStore()

	require.NoError(t, s.Append(Message{ID: "m1", Role: RoleUser}))
	err := s.Append(Message{ID: "m1", Role: RoleAssistant})

	assert.ErrorIs(t, err, ErrDuplicateID)
	assert.Len(t, s.Messages(), 1)
}

func TestStore_MutateUpdatesInPlace(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Append(Message{ID: "m1", Role: RoleAssistant, Streaming: true}))

	s.Mutate("m1", func(m *Message) {
		m.Content += "Hello"
	})
	s.Mutate("m1", func(m *Message) {
		m.Content += ", world"
	})

	msgs := s.Messages()
	assert.Equal(t, "Hello, world", msgs[0].Content)
	assert.True(t, msgs[0].Streaming)
}

func TestStore_MutateUnknownIDIsNoOp(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Append(Message{ID: "m1", Role: RoleUser, Content: "hi"}))

	// Must not panic or touch existing messages.
	s.Mutate("ghost", func(m *Message) {
		m.Content = "mutated"
	})

	assert.Equal(t, "hi", s.Messages()[0].Content)
}

func TestStore_AtMostOneStreamingMessage(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Append(Message{ID: "u1", Role: RoleUser, Content: "q"}))
	require.NoError(t, s.Append(Message{ID: "a1", Role: RoleAssistant, Streaming: true}))
	s.SetStreaming(true)

	// Finalize the first exchange, start a second one.
	s.Mutate("a1", func(m *Message) {
		m.Content = "answer"
		m.Streaming = false
	})
	s.SetStreaming(false)
	require.NoError(t, s.Append(Message{ID: "u2", Role: RoleUser, Content: "q2"}))
	require.NoError(t, s.Append(Message{ID: "a2", Role: RoleAssistant, Streaming: true}))
	s.SetStreaming(true)

	streaming := 0
	for _, m := range s.Messages() {
		if m.Streaming {
			streaming++
			assert.Equal(t, RoleAssistant, m.Role)
			assert.Equal(t, "a2", m.ID)
		}
	}
	assert.Equal(t, 1, streaming)
	assert.True(t, s.IsStreaming())
}

func TestStore_ResetReplacesSession(t *testing.T) {
	s := NewStore()
	oldID := s.SessionID()
	require.NoError(t, s.Append(Message{ID: "m1", Role: RoleUser, Content: "hi"}))
	s.SetStreaming(true)

	s.Reset()

	assert.NotEqual(t, oldID, s.SessionID())
	assert.Empty(t, s.Messages())
	assert.False(t, s.IsStreaming())

	// Old IDs are usable again after reset.
	assert.NoError(t, s.Append(Message{ID: "m1", Role: RoleUser}))
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Append(Message{ID: "m1", Role: RoleUser, Content: "hi"}))

	snap := s.Snapshot()
	snap.Messages[0].Content = "tampered"

	assert.Equal(t, "hi", s.Messages()[0].Content)
}
