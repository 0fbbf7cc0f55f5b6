// Package transcript holds the ordered, append-only conversation log.
package transcript

import "sync"

// Role identifies who (or what) produced a message.
type Role string

const (
	// RoleUser marks messages typed by the user.
	RoleUser Role = "user"
	// RoleAssistant marks replies from the chat backend, including the
	// fixed acknowledgements the client produces itself.
	RoleAssistant Role = "assistant"
	// RoleError marks failure notices surfaced to the user.
	RoleError Role = "error"
)

// Message is a single transcript entry. Messages are immutable once appended.
type Message struct {
	Role    Role
	Content string
}

// Store is an ordered, append-only log of messages. Insertion order is
// display order; nothing is ever edited or removed.
type Store struct {
	mu   sync.RWMutex
	msgs []Message
}

// NewStore returns an empty transcript.
func NewStore() *Store {
	return &Store{}
}

// Append adds a message to the end of the transcript.
func (s *Store) Append(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, m)
}

// Messages returns a snapshot of the transcript in insertion order. The
// returned slice is a copy; mutating it does not affect the store.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// Len returns the number of messages appended so far.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

// Last returns the most recent message, if any.
func (s *Store) Last() (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.msgs) == 0 {
		return Message{}, false
	}
	return s.msgs[len(s.msgs)-1], true
}

// LastByRole returns the most recent message with the given role, if any.
func (s *Store) LastByRole(role Role) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.msgs) - 1; i >= 0; i-- {
		if s.msgs[i].Role == role {
			return s.msgs[i], true
		}
	}
	return Message{}, false
}
