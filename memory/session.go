package memory

import (
	"sync"

	"github.com/mentorstack/coach-go-sdk/core"
)

// DefaultSessionCapacity bounds a session to its most recent turns.
const DefaultSessionCapacity = 20

// SessionMemory holds the active conversation's turns in order. Bounded:
// once capacity is reached the oldest turn is evicted first. Safe for
// concurrent use.
type SessionMemory struct {
	mu       sync.Mutex
	capacity int
	turns    []core.Turn
}

// NewSession creates a SessionMemory holding at most capacity turns.
func NewSession(capacity int) *SessionMemory {
	if capacity <= 0 {
		capacity = DefaultSessionCapacity
	}
	return &SessionMemory{capacity: capacity}
}

// Append records a turn, evicting the oldest if the session is full.
func (s *SessionMemory) Append(turn core.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, turn)
	if len(s.turns) > s.capacity {
		s.turns = s.turns[len(s.turns)-s.capacity:]
	}
}

// Recent returns the last n turns in chronological order. n larger than
// the session returns everything held.
func (s *SessionMemory) Recent(n int) []core.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 {
		return nil
	}
	start := len(s.turns) - n
	if start < 0 {
		start = 0
	}
	out := make([]core.Turn, len(s.turns)-start)
	copy(out, s.turns[start:])
	return out
}

// Len reports how many turns are currently held.
func (s *SessionMemory) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// Clear discards all turns, ending the session's memory.
func (s *SessionMemory) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
}
