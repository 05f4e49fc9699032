package session

import (
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/tailored-agentic-units/switchboard/core/protocol"
)

type memorySession struct {
	id      string
	pinned  []protocol.Message
	history []protocol.Message
	caching CachingConfig
	mu      sync.RWMutex
}

// NewMemorySession creates a Session backed by in-memory slices with no
// init prompt and no eviction. The session is assigned a UUIDv7 identifier.
func NewMemorySession() Session {
	return newMemorySession(nil, CachingConfig{Mechanism: MechanismNone})
}

func newMemorySession(initPrompt []protocol.Message, caching CachingConfig) *memorySession {
	return &memorySession{
		id:      uuid.Must(uuid.NewV7()).String(),
		pinned:  slices.Clone(initPrompt),
		caching: caching,
	}
}

func (s *memorySession) ID() string {
	return s.id
}

func (s *memorySession) Caching() CachingConfig {
	return s.caching
}

func (s *memorySession) AddMessage(msg protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, msg)

	if s.caching.Mechanism == MechanismForgetful && s.caching.Limit > 0 {
		if excess := len(s.history) - s.caching.Limit; excess > 0 {
			s.history = slices.Delete(s.history, 0, excess)
		}
	}
}

func (s *memorySession) Messages() []protocol.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]protocol.Message, 0, len(s.pinned)+len(s.history))
	out = append(out, s.pinned...)
	out = append(out, s.history...)
	return out
}

func (s *memorySession) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

func (s *memorySession) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

// Overflow folds the history down to half the limit so a summary is not
// regenerated on every subsequent turn.
func (s *memorySession) Overflow() []protocol.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.caching.Mechanism != MechanismSummarize || s.caching.Limit <= 0 {
		return nil
	}
	if len(s.history) <= s.caching.Limit {
		return nil
	}

	keep := s.caching.Limit / 2
	return slices.Clone(s.history[:len(s.history)-keep])
}

func (s *memorySession) Fold(n int, summary protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n = min(n, len(s.history))
	if n <= 0 {
		return
	}

	folded := make([]protocol.Message, 0, len(s.history)-n+1)
	folded = append(folded, summary)
	folded = append(folded, s.history[n:]...)
	s.history = folded
}
