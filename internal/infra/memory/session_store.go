package memory

import (
	"sync"

	"quiz-integrity-service/internal/app"
	"quiz-integrity-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[domain.AttemptKey]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[domain.AttemptKey]*app.Session),
	}
}

func (s *SessionStore) Put(session *app.Session) *app.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.sessions[session.Key()]
	s.sessions[session.Key()] = session
	return prev
}

func (s *SessionStore) Get(key domain.AttemptKey) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[key]
	return session, ok
}

func (s *SessionStore) Delete(session *app.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.sessions[session.Key()]; ok && current == session {
		delete(s.sessions, session.Key())
	}
}

// size reports how many sessions are live.
func (s *SessionStore) size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
