package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-integrity-service/internal/app"
	"quiz-integrity-service/internal/domain"
)

// SessionStore is a Redis-aware implementation of SessionRepository.
// Sessions themselves live in process; Redis only marks which attempts are live
// (value is the session id) so other instances and operators can see them.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[domain.AttemptKey]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[domain.AttemptKey]*app.Session),
	}
}

func (s *SessionStore) Put(session *app.Session) *app.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.sessions[session.Key()]
	s.sessions[session.Key()] = session
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(session.Key()), session.ID(), s.ttl).Err()
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
	if current, ok := s.sessions[session.Key()]; !ok || current != session {
		return
	}
	delete(s.sessions, session.Key())
	_ = s.client.Del(context.Background(), s.key(session.Key())).Err()
}

// live reports the session id recorded in Redis for key, if any.
func (s *SessionStore) live(ctx context.Context, key domain.AttemptKey) (string, bool) {
	id, err := s.client.Get(ctx, s.key(key)).Result()
	if err != nil {
		return "", false
	}
	return id, true
}

func (s *SessionStore) key(key domain.AttemptKey) string {
	return "quiz:attempt:" + key.String()
}
