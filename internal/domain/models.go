package domain

import (
	"fmt"
	"time"
)

const (
	// DefaultMaxAttempts applies when a quiz does not set its own attempt limit.
	DefaultMaxAttempts = 3
	// DefaultMaxWarnings applies when security settings do not set a threshold.
	DefaultMaxWarnings = 3
)

// QuestionType selects how a question's answer is scored.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple-choice"
	QuestionIdentification QuestionType = "identification"
	// QuestionExactAnswer is an older name for identification questions.
	QuestionExactAnswer QuestionType = "exactAnswer"
)

// IsTextual reports whether answers to this question type are free text.
func (t QuestionType) IsTextual() bool {
	return t == QuestionIdentification || t == QuestionExactAnswer
}

// Option represents a possible answer for a multiple-choice question.
type Option struct {
	Text string `json:"text"`
}

// Question is a single quiz item.
type Question struct {
	ID            string       `json:"id"`
	Prompt        string       `json:"prompt"`
	Type          QuestionType `json:"type"`
	Options       []Option     `json:"options,omitempty"`
	CorrectIndex  int          `json:"correctAnswerIndex"`
	CorrectAnswer string       `json:"correctAnswer,omitempty"`
	Explanation   string       `json:"explanation,omitempty"`
}

// SecuritySettings controls the anti-cheating behaviour of a quiz.
type SecuritySettings struct {
	Enabled          bool `json:"enabled"`
	ShuffleQuestions bool `json:"shuffleQuestions"`
	LockOnLeave      bool `json:"lockOnLeave"`
	WarnOnPaste      bool `json:"warnOnPaste"`
	MaxWarnings      int  `json:"maxWarnings"` // defaults to DefaultMaxWarnings if zero
}

// WarningLimit returns the number of warnings that locks the quiz.
func (s SecuritySettings) WarningLimit() int {
	if s.MaxWarnings <= 0 {
		return DefaultMaxWarnings
	}
	return s.MaxWarnings
}

// Quiz is the immutable definition of a quiz while attempts are in progress.
type Quiz struct {
	ID             string           `json:"id"`
	Title          string           `json:"title"`
	Questions      []Question       `json:"questions"`
	MaxAttempts    int              `json:"maxAttempts"` // defaults to DefaultMaxAttempts if zero
	Security       SecuritySettings `json:"settings"`
	AvailableFrom  *time.Time       `json:"availableFrom,omitempty"`
	AvailableUntil *time.Time       `json:"availableUntil,omitempty"`
}

// AttemptLimit returns the maximum number of submissions allowed per student and class.
func (q Quiz) AttemptLimit() int {
	if q.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return q.MaxAttempts
}

// Validate checks that every question has a unique, non-empty id. Stored question orders
// refer to questions by id.
func (q Quiz) Validate() error {
	seen := make(map[string]struct{}, len(q.Questions))
	for i, question := range q.Questions {
		if question.ID == "" {
			return fmt.Errorf("%w: question %d has no id", ErrInvalidQuiz, i)
		}
		if _, dup := seen[question.ID]; dup {
			return fmt.Errorf("%w: duplicate question id %q", ErrInvalidQuiz, question.ID)
		}
		seen[question.ID] = struct{}{}
	}
	return nil
}

// IsExam reports whether the quiz allows a single attempt only.
func (q Quiz) IsExam() bool {
	return q.AttemptLimit() == 1
}

// AttemptKey identifies one student's attempts at one quiz within a class.
type AttemptKey struct {
	QuizID    string `json:"quizId"`
	StudentID string `json:"studentId"`
	ClassID   string `json:"classId"`
}

func (k AttemptKey) String() string {
	return k.QuizID + "|" + k.StudentID + "|" + k.ClassID
}

// Valid reports whether every part of the key is set.
func (k AttemptKey) Valid() bool {
	return k.QuizID != "" && k.StudentID != "" && k.ClassID != ""
}

// Answer is a student response: Choice for multiple-choice, Text for identification.
type Answer struct {
	Choice int    `json:"choice"`
	Text   string `json:"text,omitempty"`
}

// ChoiceAnswer builds a multiple-choice answer.
func ChoiceAnswer(index int) Answer { return Answer{Choice: index} }

// TextAnswer builds an identification answer.
func TextAnswer(text string) Answer { return Answer{Choice: -1, Text: text} }

// Submission is a persisted, immutable record of a finished attempt.
type Submission struct {
	ID            string    `json:"id"`
	QuizID        string    `json:"quizId"`
	StudentID     string    `json:"studentId"`
	ClassID       string    `json:"classId"`
	Score         int       `json:"score"`
	TotalItems    int       `json:"totalItems"`
	AttemptNumber int       `json:"attemptNumber"`
	Late          bool      `json:"late"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// Lock prevents further attempts on a quiz by a student. Its presence overrides local state.
type Lock struct {
	QuizID    string    `json:"quizId"`
	StudentID string    `json:"studentId"`
	ClassID   string    `json:"classId"`
	LockedAt  time.Time `json:"lockedAt"`
	Reason    string    `json:"reason"`
}
