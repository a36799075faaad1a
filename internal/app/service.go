package app

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"quiz-integrity-service/internal/domain"
	"quiz-integrity-service/internal/metrics"
)

// AttemptService opens attempt sessions and reconciles them with persisted state.
type AttemptService struct {
	quizzes   QuizRepository
	store     AttemptStore
	local     LocalCache
	sessions  SessionRepository
	shuffle   *shuffler
	now       func() time.Time
	log       *zap.Logger
	lockRetry time.Duration
}

// Option customizes an AttemptService.
type Option func(*AttemptService)

// WithLogger sets the logger; nil keeps the no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *AttemptService) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock is mainly for deterministic timestamps in tests.
func WithClock(now func() time.Time) Option {
	return func(s *AttemptService) { s.now = now }
}

// WithSeed fixes the shuffle seed.
func WithSeed(seed int64) Option {
	return func(s *AttemptService) { s.shuffle = newShuffler(seed) }
}

// WithLockRetry bounds how long a failed lock write keeps being retried.
func WithLockRetry(d time.Duration) Option {
	return func(s *AttemptService) { s.lockRetry = d }
}

func NewAttemptService(quizzes QuizRepository, store AttemptStore, local LocalCache, sessions SessionRepository, opts ...Option) *AttemptService {
	s := &AttemptService{
		quizzes:   quizzes,
		store:     store,
		local:     local,
		sessions:  sessions,
		shuffle:   newShuffler(time.Now().UnixNano()),
		now:       time.Now,
		log:       zap.NewNop(),
		lockRetry: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open loads persisted state for key and returns a session in its initial state.
// signals may be nil when the host has no signal source.
func (s *AttemptService) Open(ctx context.Context, key domain.AttemptKey, signals SignalSource) (*Session, error) {
	if !key.Valid() {
		return nil, domain.ErrInvalidKey
	}
	// A submission left unsaved by the previous session must land before attempts are counted.
	if prev, ok := s.sessions.Get(key); ok {
		if err := prev.flush(ctx); err != nil {
			return nil, err
		}
	}
	quiz, err := s.quizzes.GetQuiz(ctx, key.QuizID)
	if err != nil {
		return nil, err
	}

	session := newSession(s, key, quiz)
	if err := s.load(ctx, session, quiz); err != nil {
		return nil, err
	}

	state := session.att.state
	metrics.SessionsOpened.WithLabelValues(string(state)).Inc()
	session.log.Info("attempt opened",
		zap.String("state", string(state)),
		zap.Int("warnings", session.att.warnings),
		zap.Int("attemptsUsed", session.att.priorAttempts))

	if prev := s.sessions.Put(session); prev != nil && prev != session {
		prev.detach()
	}
	if state.InProgress() && signals != nil {
		unregister := signals.OnLeaveSignal(session.handleSignal)
		session.mu.Lock()
		session.unregister = unregister
		session.mu.Unlock()
	}
	return session, nil
}

// load decides the initial state: Unavailable, NoAttemptsLeft, Locked, then Answering.
func (s *AttemptService) load(ctx context.Context, session *Session, quiz domain.Quiz) error {
	key := session.key
	att := &session.att
	now := s.now()

	if !available(quiz, now) {
		att.state = domain.StateUnavailable
		return nil
	}
	att.late = quiz.AvailableUntil != nil && now.After(*quiz.AvailableUntil)

	var (
		lock        *domain.Lock
		submissions []domain.Submission
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		l, err := s.store.FetchLock(gctx, key.QuizID, key.StudentID)
		if err != nil {
			return domain.NewPersistenceError("fetch lock", err)
		}
		lock = l
		return nil
	})
	g.Go(func() error {
		subs, err := s.store.FetchSubmissions(gctx, key)
		if err != nil {
			return domain.NewPersistenceError("fetch submissions", err)
		}
		submissions = subs
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	att.priorAttempts = len(submissions)
	att.warnings = s.localWarnings(ctx, key, att.maxWarnings)

	switch {
	case att.priorAttempts >= att.maxAttempts:
		att.state = domain.StateNoAttemptsLeft
		if latest := latestSubmission(submissions); latest != nil {
			score := latest.Score
			att.score = &score
			att.totalItems = latest.TotalItems
		}
	case lock != nil:
		att.state = domain.StateLocked
		att.locked = true
	case att.warnings >= att.maxWarnings:
		att.state = domain.StateLocked
		att.locked = true
		// The earlier lock write never reached the store; repeat it.
		session.writeLockAsync(domain.Lock{
			QuizID:    key.QuizID,
			StudentID: key.StudentID,
			ClassID:   key.ClassID,
			LockedAt:  now,
			Reason:    lockReason(domain.SignalNavigate),
		})
	default:
		att.state = domain.StateAnswering
		att.questions = s.presentedOrder(ctx, quiz, key.StudentID)
	}
	return nil
}

func (s *AttemptService) localWarnings(ctx context.Context, key domain.AttemptKey, limit int) int {
	k := warningsKey(key.QuizID, key.StudentID)
	raw, ok, err := s.local.Read(ctx, k)
	if err != nil {
		s.log.Warn("read warnings", zap.String("key", k), zap.Error(err))
		return 0
	}
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		s.log.Warn("discarding malformed warning count", zap.String("key", k), zap.String("value", raw))
		return 0
	}
	if n > limit {
		n = limit
	}
	return n
}

// Get returns the live session for key.
func (s *AttemptService) Get(key domain.AttemptKey) (*Session, error) {
	session, ok := s.sessions.Get(key)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Dismiss closes a session without submitting. Warning state stays in the local cache.
// A leave prompt still open counts as confirmed.
// A submission still waiting to be saved is retried once and its error returned; the
// session then stays registered so the next Open can flush it.
func (s *AttemptService) Dismiss(ctx context.Context, session *Session) error {
	session.detach()
	if session.View().State == domain.StateAwaitingLeaveConfirmation {
		if _, err := session.ConfirmLeave(ctx); err != nil {
			session.log.Warn("confirm leave on dismiss", zap.Error(err))
		}
	}
	if err := session.flush(ctx); err != nil {
		return err
	}
	s.sessions.Delete(session)
	return nil
}

// Unlock removes a student's lock and local warning count. It is an administrative
// operation and is never triggered by the session itself.
func (s *AttemptService) Unlock(ctx context.Context, quizID, studentID string) error {
	if err := s.store.DeleteLock(ctx, quizID, studentID); err != nil {
		return domain.NewPersistenceError("delete lock", err)
	}
	if err := s.local.Clear(ctx, warningsKey(quizID, studentID)); err != nil {
		return domain.NewPersistenceError("clear warnings", err)
	}
	s.log.Info("quiz unlocked", zap.String("quizId", quizID), zap.String("studentId", studentID))
	return nil
}

func available(quiz domain.Quiz, now time.Time) bool {
	if len(quiz.Questions) == 0 {
		return false
	}
	if quiz.AvailableFrom != nil && now.Before(*quiz.AvailableFrom) {
		return false
	}
	if quiz.IsExam() && quiz.AvailableUntil != nil && now.After(*quiz.AvailableUntil) {
		return false
	}
	return true
}

func latestSubmission(subs []domain.Submission) *domain.Submission {
	var latest *domain.Submission
	for i := range subs {
		if latest == nil || subs[i].SubmittedAt.After(latest.SubmittedAt) {
			latest = &subs[i]
		}
	}
	return latest
}
