package cli

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"

	"quiz-integrity-service/internal/app"
	"quiz-integrity-service/internal/config"
	"quiz-integrity-service/internal/domain"
	"quiz-integrity-service/internal/infra/memory"
	pgstore "quiz-integrity-service/internal/infra/postgres"
	redisstore "quiz-integrity-service/internal/infra/redis"
)

// localKeyPrefix namespaces per-student attempt state in a shared Redis.
const localKeyPrefix = "local:"

// deps holds the infrastructure behind an AttemptService and knows how to release it.
type deps struct {
	service *app.AttemptService
	closers []func()
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func openBun(url string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(url)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// buildDeps wires the service from config. Without Postgres or Redis the in-memory
// implementations are used, which is enough for local development.
func buildDeps(ctx context.Context, cfg config.Config, log *zap.Logger) (*deps, error) {
	d := &deps{}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			_ = redisClient.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		d.closers = append(d.closers, func() { _ = redisClient.Close() })
	}

	var (
		loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
		store  app.AttemptStore  = memory.NewAttemptStore()
	)
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.closers = append(d.closers, pool.Close)
		loader = pgstore.NewQuizLoader(pool)

		db := openBun(cfg.Postgres.URL)
		d.closers = append(d.closers, func() { _ = db.Close() })
		store = pgstore.NewAttemptStore(db)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	sessionTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	localTTL := config.TTLDuration(cfg.Local.TTL, 7*24*time.Hour)

	var (
		quizRepo app.QuizRepository
		local    app.LocalCache
		sessions app.SessionRepository
	)
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, loader, quizTTL, log)
		local = redisstore.NewLocalCache(redisClient, localKeyPrefix, localTTL)
		sessions = redisstore.NewSessionStore(redisClient, sessionTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
		local = memory.NewLocalCache()
		sessions = memory.NewSessionStore()
	}

	d.service = app.NewAttemptService(quizRepo, store, local, sessions,
		app.WithLogger(log),
		app.WithLockRetry(config.TTLDuration(cfg.Lock.Retry, 30*time.Second)),
	)
	return d, nil
}

// sampleQuizzes provides a minimal quiz for running without Postgres.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Sample quiz",
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "What is 2 + 2?",
					Type:   domain.QuestionMultipleChoice,
					Options: []domain.Option{
						{Text: "3"},
						{Text: "4"},
						{Text: "5"},
					},
					CorrectIndex: 1,
				},
				{
					ID:            "q2",
					Prompt:        "What is the capital of France?",
					Type:          domain.QuestionIdentification,
					CorrectAnswer: "Paris",
				},
			},
			Security: domain.SecuritySettings{
				Enabled:          true,
				ShuffleQuestions: true,
				LockOnLeave:      true,
				MaxWarnings:      domain.DefaultMaxWarnings,
			},
		},
	}
}
