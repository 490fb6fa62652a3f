package session

import (
	"context"
	"sync"
	"time"
)

// MemStore is a mutex-guarded in-memory session store. Expired sessions are
// dropped lazily on access.
type MemStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		sessions: map[string]Session{},
	}
}

// Get fetches a live session by id.
func (s *MemStore) Get(ctx context.Context, sessionID string) (*Session, bool, error) {
	s.mu.RLock()
	session, found := s.sessions[sessionID]
	s.mu.RUnlock()

	if !found {
		return nil, false, nil
	}

	if time.Now().After(session.ExpiresAt) {
		s.mu.Lock()
		delete(s.sessions, sessionID)
		s.mu.Unlock()

		return nil, false, nil
	}

	return &session, true, nil
}

// Set stores or replaces the session.
func (s *MemStore) Set(ctx context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = *session

	return nil
}

// Destroy removes the session.
func (s *MemStore) Destroy(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)

	return nil
}
