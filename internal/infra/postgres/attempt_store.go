package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"quiz-integrity-service/internal/domain"
)

const uniqueViolation = "23505"

type submissionRow struct {
	bun.BaseModel `bun:"table:quiz_submissions"`

	ID            string    `bun:"id,pk"`
	QuizID        string    `bun:"quiz_id,notnull"`
	StudentID     string    `bun:"student_id,notnull"`
	ClassID       string    `bun:"class_id,notnull"`
	Score         int       `bun:"score,notnull"`
	TotalItems    int       `bun:"total_items,notnull"`
	AttemptNumber int       `bun:"attempt_number,notnull"`
	Late          bool      `bun:"late,notnull"`
	SubmittedAt   time.Time `bun:"submitted_at,notnull"`
}

type lockRow struct {
	bun.BaseModel `bun:"table:quiz_locks"`

	QuizID    string    `bun:"quiz_id,pk"`
	StudentID string    `bun:"student_id,pk"`
	ClassID   string    `bun:"class_id,notnull"`
	LockedAt  time.Time `bun:"locked_at,notnull"`
	Reason    string    `bun:"reason,notnull"`
}

// AttemptStore keeps submissions and locks in Postgres. Cross-device races are settled by
// the unique (quiz_id, student_id, class_id, attempt_number) constraint.
type AttemptStore struct {
	db *bun.DB
}

func NewAttemptStore(db *bun.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

func (s *AttemptStore) FetchLock(ctx context.Context, quizID, studentID string) (*domain.Lock, error) {
	var row lockRow
	err := s.db.NewSelect().
		Model(&row).
		Where("quiz_id = ?", quizID).
		Where("student_id = ?", studentID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select lock: %w", err)
	}
	return &domain.Lock{
		QuizID:    row.QuizID,
		StudentID: row.StudentID,
		ClassID:   row.ClassID,
		LockedAt:  row.LockedAt,
		Reason:    row.Reason,
	}, nil
}

// WriteLock keeps the first lock recorded for a student.
func (s *AttemptStore) WriteLock(ctx context.Context, lock domain.Lock) error {
	row := lockRow{
		QuizID:    lock.QuizID,
		StudentID: lock.StudentID,
		ClassID:   lock.ClassID,
		LockedAt:  lock.LockedAt,
		Reason:    lock.Reason,
	}
	if _, err := s.db.NewInsert().Model(&row).On("CONFLICT (quiz_id, student_id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("insert lock: %w", err)
	}
	return nil
}

func (s *AttemptStore) DeleteLock(ctx context.Context, quizID, studentID string) error {
	_, err := s.db.NewDelete().
		Model((*lockRow)(nil)).
		Where("quiz_id = ?", quizID).
		Where("student_id = ?", studentID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	return nil
}

func (s *AttemptStore) FetchSubmissions(ctx context.Context, key domain.AttemptKey) ([]domain.Submission, error) {
	var rows []submissionRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("quiz_id = ?", key.QuizID).
		Where("student_id = ?", key.StudentID).
		Where("class_id = ?", key.ClassID).
		OrderExpr("submitted_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select submissions: %w", err)
	}
	subs := make([]domain.Submission, len(rows))
	for i, row := range rows {
		subs[i] = domain.Submission{
			ID:            row.ID,
			QuizID:        row.QuizID,
			StudentID:     row.StudentID,
			ClassID:       row.ClassID,
			Score:         row.Score,
			TotalItems:    row.TotalItems,
			AttemptNumber: row.AttemptNumber,
			Late:          row.Late,
			SubmittedAt:   row.SubmittedAt,
		}
	}
	return subs, nil
}

// WriteSubmission is a no-op for an id that already exists, so retries are safe.
func (s *AttemptStore) WriteSubmission(ctx context.Context, sub domain.Submission) error {
	row := submissionRow{
		ID:            sub.ID,
		QuizID:        sub.QuizID,
		StudentID:     sub.StudentID,
		ClassID:       sub.ClassID,
		Score:         sub.Score,
		TotalItems:    sub.TotalItems,
		AttemptNumber: sub.AttemptNumber,
		Late:          sub.Late,
		SubmittedAt:   sub.SubmittedAt,
	}
	_, err := s.db.NewInsert().Model(&row).On("CONFLICT (id) DO NOTHING").Exec(ctx)
	if err == nil {
		return nil
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolation {
		return fmt.Errorf("%w: attempt %d", domain.ErrAttemptConflict, sub.AttemptNumber)
	}
	return fmt.Errorf("insert submission: %w", err)
}
