package domain

import (
	"errors"
	"testing"
)

func TestQuizValidate(t *testing.T) {
	cases := []struct {
		name  string
		ids   []string
		valid bool
	}{
		{name: "unique", ids: []string{"q1", "q2"}, valid: true},
		{name: "empty quiz", valid: true},
		{name: "missing id", ids: []string{"q1", ""}},
		{name: "duplicate id", ids: []string{"q1", "q1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			quiz := Quiz{ID: "quiz-1"}
			for _, id := range tc.ids {
				quiz.Questions = append(quiz.Questions, Question{ID: id})
			}
			err := quiz.Validate()
			if tc.valid && err != nil {
				t.Fatalf("expected valid quiz, got %v", err)
			}
			if !tc.valid && !errors.Is(err, ErrInvalidQuiz) {
				t.Fatalf("expected ErrInvalidQuiz, got %v", err)
			}
		})
	}
}
