package app

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"quiz-integrity-service/internal/domain"
	"quiz-integrity-service/internal/metrics"
)

// submissionNamespace seeds deterministic submission ids so a retried write never duplicates a row.
var submissionNamespace = uuid.MustParse("6f1c2b7e-4a0d-4c53-9a55-2d9b8f4e7c31")

// Session owns the state of one student's attempt at one quiz.
// All methods are safe for concurrent use; events are applied one at a time.
type Session struct {
	id  string
	key domain.AttemptKey
	svc *AttemptService
	log *zap.Logger

	mu          sync.Mutex
	att         attempt
	pending     *domain.Submission
	unregister  func()
	subscribers map[chan domain.AttemptView]struct{}

	writes sync.WaitGroup
}

func newSession(svc *AttemptService, key domain.AttemptKey, quiz domain.Quiz) *Session {
	id := uuid.NewString()
	return &Session{
		id:          id,
		key:         key,
		svc:         svc,
		log:         svc.log.With(zap.String("session", id), zap.String("quizId", key.QuizID), zap.String("studentId", key.StudentID)),
		subscribers: make(map[chan domain.AttemptView]struct{}),
		att: attempt{
			state:       domain.StateLoading,
			security:    quiz.Security,
			questions:   quiz.Questions,
			answers:     make(map[int]domain.Answer),
			maxWarnings: quiz.Security.WarningLimit(),
			maxAttempts: quiz.AttemptLimit(),
		},
	}
}

// ID returns the unique id of this session.
func (s *Session) ID() string { return s.id }

// Key returns the attempt key the session belongs to.
func (s *Session) Key() domain.AttemptKey { return s.key }

// Answer records a response for the current question.
func (s *Session) Answer(ctx context.Context, answer domain.Answer) (domain.AttemptView, error) {
	return s.dispatch(ctx, event{kind: eventAnswer, answer: answer})
}

// Next moves to the following question once the current one is answered.
func (s *Session) Next(ctx context.Context) (domain.AttemptView, error) {
	return s.dispatch(ctx, event{kind: eventNext})
}

// Previous moves back one question.
func (s *Session) Previous(ctx context.Context) (domain.AttemptView, error) {
	return s.dispatch(ctx, event{kind: eventPrevious})
}

// Signal feeds a client environment event into the session.
func (s *Session) Signal(ctx context.Context, sig domain.Signal) (domain.AttemptView, error) {
	return s.dispatch(ctx, event{kind: eventSignal, signal: sig.Kind})
}

// Stay cancels a pending leave without a warning.
func (s *Session) Stay(ctx context.Context) (domain.AttemptView, error) {
	return s.dispatch(ctx, event{kind: eventStay})
}

// ConfirmLeave records the student's decision to leave; exactly one warning is issued.
func (s *Session) ConfirmLeave(ctx context.Context) (domain.AttemptView, error) {
	return s.dispatch(ctx, event{kind: eventLeave})
}

// Submit grades the attempt and writes the submission. A write failure is returned as a
// *domain.PersistenceError; the attempt stays submitted and RetrySubmit can be called.
func (s *Session) Submit(ctx context.Context) (domain.AttemptView, error) {
	return s.dispatch(ctx, event{kind: eventSubmit})
}

// ToggleReview opens or closes the review of a submitted attempt.
func (s *Session) ToggleReview(ctx context.Context) (domain.AttemptView, error) {
	return s.dispatch(ctx, event{kind: eventToggleReview})
}

// RetrySubmit repeats a failed submission write.
func (s *Session) RetrySubmit(ctx context.Context) (domain.AttemptView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return s.viewLocked(), domain.ErrNothingToRetry
	}
	err := s.saveLocked(ctx)
	return s.broadcastLocked(), err
}

// flush retries a pending submission write, if any.
func (s *Session) flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return nil
	}
	err := s.saveLocked(ctx)
	s.broadcastLocked()
	return err
}

// View returns the current snapshot.
func (s *Session) View() domain.AttemptView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Wait blocks until background lock writes have finished.
func (s *Session) Wait() {
	s.writes.Wait()
}

// Subscribe returns a channel that receives a view after every change.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan domain.AttemptView, func()) {
	ch := make(chan domain.AttemptView, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	initial := s.viewLocked()
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) dispatch(ctx context.Context, ev event) (domain.AttemptView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, effects, err := transition(s.att, ev)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			s.log.Debug("ignoring event", zap.Stringer("event", ev.kind), zap.String("state", string(s.att.state)))
			return s.viewLocked(), nil
		}
		return s.viewLocked(), err
	}
	s.att = next
	runErr := s.runLocked(ctx, effects)
	return s.broadcastLocked(), runErr
}

func (s *Session) runLocked(ctx context.Context, effects []effect) error {
	var firstErr error
	for _, eff := range effects {
		switch eff.kind {
		case effectPersistWarnings:
			metrics.Warnings.WithLabelValues(string(eff.reason)).Inc()
			s.log.Info("warning issued", zap.Int("warnings", eff.warnings), zap.String("signal", string(eff.reason)))
			key := warningsKey(s.key.QuizID, s.key.StudentID)
			if err := s.svc.local.Write(ctx, key, strconv.Itoa(eff.warnings)); err != nil {
				s.log.Warn("persist warnings", zap.String("key", key), zap.Error(err))
			}
		case effectWriteLock:
			metrics.Locks.Inc()
			s.writeLockAsync(domain.Lock{
				QuizID:    s.key.QuizID,
				StudentID: s.key.StudentID,
				ClassID:   s.key.ClassID,
				LockedAt:  s.svc.now(),
				Reason:    lockReason(eff.reason),
			})
		case effectClearLocal:
			for _, key := range []string{warningsKey(s.key.QuizID, s.key.StudentID), orderKey(s.key.QuizID, s.key.StudentID)} {
				if err := s.svc.local.Clear(ctx, key); err != nil {
					s.log.Warn("clear local state", zap.String("key", key), zap.Error(err))
				}
			}
		case effectWriteSubmission:
			s.pending = &domain.Submission{
				ID:            uuid.NewSHA1(submissionNamespace, []byte(s.id+"#"+strconv.Itoa(eff.attempt))).String(),
				QuizID:        s.key.QuizID,
				StudentID:     s.key.StudentID,
				ClassID:       s.key.ClassID,
				Score:         eff.score,
				TotalItems:    eff.total,
				AttemptNumber: eff.attempt,
				Late:          s.att.late,
				SubmittedAt:   s.svc.now(),
			}
			if err := s.saveLocked(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *Session) saveLocked(ctx context.Context) error {
	if err := s.svc.store.WriteSubmission(ctx, *s.pending); err != nil {
		result := "error"
		if errors.Is(err, domain.ErrAttemptConflict) {
			result = "conflict"
		}
		metrics.Submissions.WithLabelValues(result).Inc()
		s.log.Warn("write submission", zap.Int("attempt", s.pending.AttemptNumber), zap.Error(err))
		return domain.NewPersistenceError("write submission", err)
	}
	metrics.Submissions.WithLabelValues("ok").Inc()
	s.log.Info("submission saved", zap.Int("attempt", s.pending.AttemptNumber), zap.Int("score", s.pending.Score))
	s.pending = nil
	s.att, _, _ = transition(s.att, event{kind: eventSaved})
	s.detachLocked()
	return nil
}

// writeLockAsync persists lock in the background. The client-side lock is already in
// effect, so the write is retried with backoff and survives caller cancellation.
func (s *Session) writeLockAsync(lock domain.Lock) {
	s.writes.Add(1)
	go func() {
		defer s.writes.Done()
		ctx := context.Background()
		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = 100 * time.Millisecond
		policy.MaxElapsedTime = s.svc.lockRetry
		err := backoff.Retry(func() error {
			return s.svc.store.WriteLock(ctx, lock)
		}, backoff.WithContext(policy, ctx))
		if err != nil {
			metrics.LockWriteFailures.Inc()
			s.log.Error("write lock", zap.String("reason", lock.Reason), zap.Error(err))
			return
		}
		s.log.Info("quiz locked", zap.String("reason", lock.Reason))
	}()
}

func (s *Session) handleSignal(sig domain.Signal) {
	_, _ = s.Signal(context.Background(), sig)
}

// detach stops listening to client signals.
func (s *Session) detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detachLocked()
}

func (s *Session) detachLocked() {
	if s.unregister != nil {
		s.unregister()
		s.unregister = nil
	}
}

func (s *Session) viewLocked() domain.AttemptView {
	ids := make([]string, len(s.att.questions))
	for i, q := range s.att.questions {
		ids[i] = q.ID
	}
	answers := make(map[int]domain.Answer, len(s.att.answers))
	for i, a := range s.att.answers {
		answers[i] = a
	}
	var score *int
	if s.att.score != nil {
		v := *s.att.score
		score = &v
	}
	return domain.AttemptView{
		SessionID:      s.id,
		Key:            s.key,
		State:          s.att.state,
		QuestionIDs:    ids,
		CurrentIndex:   s.att.current,
		TotalQuestions: len(s.att.questions),
		Answers:        answers,
		Warnings:       s.att.warnings,
		MaxWarnings:    s.att.maxWarnings,
		Locked:         s.att.locked,
		Submitted:      s.att.submitted,
		SavePending:    s.att.savePending,
		Score:          score,
		TotalItems:     s.att.totalItems,
		AttemptsUsed:   s.att.priorAttempts,
		MaxAttempts:    s.att.maxAttempts,
		Late:           s.att.late,
	}
}

func (s *Session) broadcastLocked() domain.AttemptView {
	view := s.viewLocked()
	for ch := range s.subscribers {
		select {
		case ch <- view:
		default:
			// drop the stale view so slow readers never block the session
			select {
			case <-ch:
			default:
			}
			ch <- view
		}
	}
	return view
}

func lockReason(kind domain.SignalKind) string {
	if kind == domain.SignalPaste {
		return "Pasting content too many times"
	}
	return "Too many unauthorized attempts to navigate away"
}
