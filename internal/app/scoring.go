package app

import (
	"strings"

	"quiz-integrity-service/internal/domain"
)

// identificationPunctuation is stripped from both sides before comparing free-text answers.
const identificationPunctuation = ".,/#!$%^&*;:{}=-_`~()"

// NormalizeAnswer lowercases, strips punctuation and trims surrounding whitespace.
func NormalizeAnswer(raw string) string {
	lowered := strings.ToLower(raw)
	stripped := strings.Map(func(r rune) rune {
		if strings.ContainsRune(identificationPunctuation, r) {
			return -1
		}
		return r
	}, lowered)
	return strings.TrimSpace(stripped)
}

// IsCorrect reports whether answer matches the question's correct answer.
func IsCorrect(q domain.Question, answer domain.Answer) bool {
	if q.Type.IsTextual() {
		return NormalizeAnswer(answer.Text) == NormalizeAnswer(q.CorrectAnswer)
	}
	return answer.Choice == q.CorrectIndex
}

// Score grades answers keyed by position in the presented question order.
// Unanswered questions count as wrong.
func Score(questions []domain.Question, answers map[int]domain.Answer) (score, total int) {
	for i, q := range questions {
		answer, ok := answers[i]
		if ok && IsCorrect(q, answer) {
			score++
		}
	}
	return score, len(questions)
}
