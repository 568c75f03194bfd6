package memory

import (
	"context"
	"sync"
	"time"

	"github.com/secmon-lab/syllabus/pkg/domain/interfaces"
	"github.com/secmon-lab/syllabus/pkg/domain/model"
)

// DefaultSessionTTL is how long an idle session history is kept.
const DefaultSessionTTL = 24 * time.Hour

type sessionEntry struct {
	turns    []model.Turn
	lastUsed time.Time
}

// SessionStore keeps bounded per-session histories in memory. Sessions idle
// longer than the TTL are evicted.
type SessionStore struct {
	mu        sync.Mutex
	maxTurns  int
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
	sessions  map[model.SessionID]*sessionEntry
}

var _ interfaces.SessionStore = &SessionStore{}

// SessionOption configures SessionStore
type SessionOption func(*SessionStore)

// WithSessionTTL sets the idle expiry of a session. A non-positive ttl keeps
// sessions until they are cleared.
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(s *SessionStore) {
		s.ttl = ttl
	}
}

// WithSessionClock replaces the time source.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *SessionStore) {
		s.now = now
	}
}

// NewSessionStore creates a store keeping at most maxTurns turns per session.
// A non-positive maxTurns keeps every turn.
func NewSessionStore(maxTurns int, opts ...SessionOption) *SessionStore {
	s := &SessionStore{
		maxTurns: maxTurns,
		ttl:      DefaultSessionTTL,
		now:      time.Now,
		sessions: make(map[model.SessionID]*sessionEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastSweep = s.now()
	return s
}

func (s *SessionStore) expired(e *sessionEntry, now time.Time) bool {
	return s.ttl > 0 && now.Sub(e.lastUsed) > s.ttl
}

// sweep drops expired sessions at most once per TTL. Caller holds mu.
func (s *SessionStore) sweep(now time.Time) {
	if s.ttl <= 0 || now.Sub(s.lastSweep) < s.ttl {
		return
	}
	for id, e := range s.sessions {
		if s.expired(e, now) {
			delete(s.sessions, id)
		}
	}
	s.lastSweep = now
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for _, e := range s.sessions {
		if !s.expired(e, now) {
			n++
		}
	}
	return n
}

func (s *SessionStore) GetHistory(ctx context.Context, sessionID model.SessionID, limit int) ([]model.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.sessions[sessionID]
	if !ok {
		return []model.Turn{}, nil
	}
	if s.expired(e, now) {
		delete(s.sessions, sessionID)
		return []model.Turn{}, nil
	}

	turns := e.turns
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}

	result := make([]model.Turn, len(turns))
	copy(result, turns)
	return result, nil
}

func (s *SessionStore) Append(ctx context.Context, sessionID model.SessionID, turns ...model.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now)

	e, ok := s.sessions[sessionID]
	if !ok || s.expired(e, now) {
		e = &sessionEntry{}
		s.sessions[sessionID] = e
	}

	history := append(e.turns, turns...)
	if s.maxTurns > 0 && len(history) > s.maxTurns {
		trimmed := make([]model.Turn, s.maxTurns)
		copy(trimmed, history[len(history)-s.maxTurns:])
		history = trimmed
	}
	e.turns = history
	e.lastUsed = now
	return nil
}

func (s *SessionStore) Clear(ctx context.Context, sessionID model.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
