package app

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"quiz-integrity-service/internal/domain"
)

// shuffler produces uniform random permutations; safe for concurrent use.
type shuffler struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func newShuffler(seed int64) *shuffler {
	return &shuffler{rnd: rand.New(rand.NewSource(seed))}
}

// permutation returns a Fisher-Yates shuffle of 0..n-1.
func (s *shuffler) permutation(n int) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := n - 1; i > 0; i-- {
		j := s.rnd.Intn(i + 1)
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm
}

// presentedOrder restores the cached order for (quiz, student) or generates and caches a new one.
// A cached order that no longer matches the quiz is regenerated.
func (s *AttemptService) presentedOrder(ctx context.Context, quiz domain.Quiz, studentID string) []domain.Question {
	key := orderKey(quiz.ID, studentID)
	if !quiz.Security.ShuffleQuestions {
		if err := s.local.Clear(ctx, key); err != nil {
			s.log.Warn("clear question order", zap.String("key", key), zap.Error(err))
		}
		return quiz.Questions
	}

	raw, ok, err := s.local.Read(ctx, key)
	if err != nil {
		s.log.Warn("read question order", zap.String("key", key), zap.Error(err))
	}
	if ok {
		order, err := decodeOrder(raw, quiz.Questions)
		if err == nil {
			return order
		}
		s.log.Info("regenerating question order", zap.String("key", key), zap.Error(err))
	}

	perm := s.shuffle.permutation(len(quiz.Questions))
	order := make([]domain.Question, len(perm))
	for i, idx := range perm {
		order[i] = quiz.Questions[idx]
	}
	if err := s.local.Write(ctx, key, encodeOrder(order)); err != nil {
		s.log.Warn("persist question order", zap.String("key", key), zap.Error(err))
	}
	return order
}

func encodeOrder(order []domain.Question) string {
	ids := make([]string, len(order))
	for i, q := range order {
		ids[i] = q.ID
	}
	data, _ := json.Marshal(ids)
	return string(data)
}

func decodeOrder(raw string, questions []domain.Question) ([]domain.Question, error) {
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrShuffleDrift, err)
	}
	if len(ids) != len(questions) {
		return nil, fmt.Errorf("%w: %d cached, %d in quiz", domain.ErrShuffleDrift, len(ids), len(questions))
	}
	byID := make(map[string]domain.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	order := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		q, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: unknown question %q", domain.ErrShuffleDrift, id)
		}
		delete(byID, id)
		order = append(order, q)
	}
	return order, nil
}
