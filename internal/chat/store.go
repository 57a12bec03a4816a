// ABOUTME: In-memory message store for the active conversation session
// ABOUTME: Single mutator (the controller), snapshot reads for the UI

package chat

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrDuplicateID is returned when appending a message whose ID already exists
// in the session.
var ErrDuplicateID = errors.New("duplicate message id")

// Store owns the state of exactly one conversation session. It is safe for
// concurrent use; readers always observe a fully applied mutation.
type Store struct {
	mu      sync.RWMutex
	session Session
	index   map[string]int // message ID -> position in session.Messages
}

// NewStore creates a Store with a fresh session: new ID, no messages,
// not streaming.
func NewStore() *Store {
	s := &Store{}
	s.resetLocked()
	return s
}

// Append inserts a message at the tail of the transcript.
// Returns ErrDuplicateID if a message with the same ID is already present.
func (s *Store) Append(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[msg.ID]; exists {
		return ErrDuplicateID
	}
	s.index[msg.ID] = len(s.session.Messages)
	s.session.Messages = append(s.session.Messages, msg)
	return nil
}

// Mutate applies fn to the message with the given ID. Unknown IDs are a
// silent no-op: late events from a cancelled channel must land nowhere.
func (s *Store) Mutate(id string, fn func(*Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.index[id]
	if !ok {
		return
	}
	fn(&s.session.Messages[pos])
}

// SetStreaming sets the session-level streaming flag.
func (s *Store) SetStreaming(streaming bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Streaming = streaming
}

// Reset replaces the session wholesale: fresh ID, empty transcript,
// streaming cleared.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Store) resetLocked() {
	s.session = Session{ID: uuid.New().String()}
	s.index = make(map[string]int)
}

// SessionID returns the current session's ID.
func (s *Store) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.ID
}

// IsStreaming reports whether an exchange is currently in flight.
func (s *Store) IsStreaming() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Streaming
}

// Messages returns a copy of the transcript in insertion order.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.session.Messages))
	copy(out, s.session.Messages)
	return out
}

// Snapshot returns a copy of the whole session.
func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Session{
		ID:        s.session.ID,
		Messages:  append([]Message(nil), s.session.Messages...),
		Streaming: s.session.Streaming,
	}
}
