package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-integrity-service/internal/domain"
)

// AttemptStore keeps submissions and locks in process memory.
// It enforces the same uniqueness rules as the Postgres store.
type AttemptStore struct {
	mu          sync.RWMutex
	locks       map[lockKey]domain.Lock
	submissions map[domain.AttemptKey][]domain.Submission
}

type lockKey struct {
	quizID    string
	studentID string
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		locks:       make(map[lockKey]domain.Lock),
		submissions: make(map[domain.AttemptKey][]domain.Submission),
	}
}

func (s *AttemptStore) FetchLock(_ context.Context, quizID, studentID string) (*domain.Lock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lock, ok := s.locks[lockKey{quizID, studentID}]
	if !ok {
		return nil, nil
	}
	return &lock, nil
}

// WriteLock keeps the first lock written for a quiz and student.
func (s *AttemptStore) WriteLock(_ context.Context, lock domain.Lock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := lockKey{lock.QuizID, lock.StudentID}
	if _, ok := s.locks[k]; !ok {
		s.locks[k] = lock
	}
	return nil
}

func (s *AttemptStore) DeleteLock(_ context.Context, quizID, studentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, lockKey{quizID, studentID})
	return nil
}

func (s *AttemptStore) FetchSubmissions(_ context.Context, key domain.AttemptKey) ([]domain.Submission, error) {
	s.mu.RLock()
	subs := append([]domain.Submission(nil), s.submissions[key]...)
	s.mu.RUnlock()

	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].SubmittedAt.After(subs[j].SubmittedAt)
	})
	return subs, nil
}

func (s *AttemptStore) WriteSubmission(_ context.Context, sub domain.Submission) error {
	key := domain.AttemptKey{QuizID: sub.QuizID, StudentID: sub.StudentID, ClassID: sub.ClassID}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.submissions[key] {
		if existing.ID == sub.ID {
			return nil
		}
		if existing.AttemptNumber == sub.AttemptNumber {
			return domain.ErrAttemptConflict
		}
	}
	s.submissions[key] = append(s.submissions[key], sub)
	return nil
}
