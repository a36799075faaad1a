package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when no live attempt session exists for a key.
	ErrSessionNotFound = errors.New("attempt session not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrInvalidQuiz indicates a quiz definition that cannot be attempted as stored.
	ErrInvalidQuiz = errors.New("invalid quiz definition")
	// ErrInvalidState marks an operation attempted in a state that forbids it.
	ErrInvalidState = errors.New("operation not allowed in current attempt state")
	// ErrInvalidAnswer indicates an answer that does not fit the current question.
	ErrInvalidAnswer = errors.New("answer does not fit question")
	// ErrInvalidKey indicates a missing quiz, student or class id.
	ErrInvalidKey = errors.New("quiz, student and class ids are required")
	// ErrShuffleDrift indicates a stored question order that no longer matches the quiz.
	ErrShuffleDrift = errors.New("stored question order does not match quiz")
	// ErrAttemptConflict indicates the attempt number was already recorded, usually from another device.
	ErrAttemptConflict = errors.New("attempt already recorded")
	// ErrNothingToRetry is returned when a retry is requested without a pending submission.
	ErrNothingToRetry = errors.New("no pending submission to retry")
)

// PersistenceError wraps a failed read or write against the attempt store or local cache.
type PersistenceError struct {
	Op  string
	Err error
}

// NewPersistenceError wraps err for operation op; a nil err yields nil.
func NewPersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the operation may succeed.
func (e *PersistenceError) Retryable() bool {
	return !errors.Is(e.Err, ErrAttemptConflict)
}

// IsPersistence reports whether err is (or wraps) a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}
