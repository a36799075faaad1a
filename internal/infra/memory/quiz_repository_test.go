package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-integrity-service/internal/domain"
)

func TestQuizRepositoryCaches(t *testing.T) {
	loader := &countingLoader{
		QuizLoader: NewStaticQuizLoader(map[string]domain.Quiz{
			"quiz-1": sampleQuiz(),
		}),
	}
	repo := NewQuizRepository(loader, time.Minute)

	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	quiz, err := repo.GetQuiz(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
	if len(quiz.Questions) != 2 {
		t.Fatalf("expected cached quiz with 2 questions, got %d", len(quiz.Questions))
	}

	repo.Invalidate("quiz-1")
	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz 3: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, loader calls %d", loader.calls)
	}
}

func TestQuizRepositoryUnknownQuiz(t *testing.T) {
	repo := NewQuizRepository(NewStaticQuizLoader(nil), time.Minute)
	if _, err := repo.GetQuiz(context.Background(), "missing"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

func TestStaticQuizLoaderRejectsDuplicateQuestionIDs(t *testing.T) {
	quiz := sampleQuiz()
	quiz.Questions[1].ID = quiz.Questions[0].ID
	repo := NewQuizRepository(NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": quiz}), time.Minute)
	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); !errors.Is(err, domain.ErrInvalidQuiz) {
		t.Fatalf("expected ErrInvalidQuiz, got %v", err)
	}
}

type countingLoader struct {
	QuizLoader
	calls int
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.calls++
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Capitals",
		Questions: []domain.Question{
			{
				ID:           "q1",
				Prompt:       "What is 2 + 2?",
				Type:         domain.QuestionMultipleChoice,
				Options:      []domain.Option{{Text: "3"}, {Text: "4"}},
				CorrectIndex: 1,
			},
			{
				ID:            "q2",
				Prompt:        "Capital of France?",
				Type:          domain.QuestionIdentification,
				CorrectAnswer: "Paris",
			},
		},
		Security: domain.SecuritySettings{Enabled: true, ShuffleQuestions: true, LockOnLeave: true},
	}
}
