package app

import (
	"context"

	"quiz-integrity-service/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// AttemptStore persists submissions and lock records. It is the source of truth
// instructors see; implementations are responsible for cross-device consistency.
type AttemptStore interface {
	FetchLock(ctx context.Context, quizID, studentID string) (*domain.Lock, error)
	WriteLock(ctx context.Context, lock domain.Lock) error
	DeleteLock(ctx context.Context, quizID, studentID string) error
	// FetchSubmissions returns prior submissions ordered by SubmittedAt, newest first.
	FetchSubmissions(ctx context.Context, key domain.AttemptKey) ([]domain.Submission, error)
	// WriteSubmission must be idempotent for a repeated Submission.ID and return
	// domain.ErrAttemptConflict when the attempt number is already taken by another id.
	WriteSubmission(ctx context.Context, sub domain.Submission) error
}

// LocalCache is reload-surviving key/value storage for warning counts and shuffle orders.
type LocalCache interface {
	Read(ctx context.Context, key string) (string, bool, error)
	Write(ctx context.Context, key, value string) error
	Clear(ctx context.Context, key string) error
}

// SignalSource emits client environment events for one attempt.
type SignalSource interface {
	// OnLeaveSignal registers fn and returns a function that unregisters it.
	OnLeaveSignal(fn func(domain.Signal)) (unregister func())
}

// SessionRepository tracks live sessions (in-memory, Redis, etc).
type SessionRepository interface {
	// Put stores session under its key and returns the session it replaced, if any.
	Put(session *Session) *Session
	Get(key domain.AttemptKey) (*Session, bool)
	// Delete removes the session only if it is still the one stored for its key.
	Delete(session *Session)
}

func warningsKey(quizID, studentID string) string {
	return "attempt:" + quizID + "|" + studentID + ":warnings"
}

func orderKey(quizID, studentID string) string {
	return "attempt:" + quizID + "|" + studentID + ":order"
}
