package cli

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quiz-integrity-service/internal/config"
	"quiz-integrity-service/internal/logger"
)

// NewUnlockCmd lifts a student's lock on a quiz.
func NewUnlockCmd(configPath *string) *cobra.Command {
	var quizID, studentID string
	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Remove a student's lock on a quiz",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			// Locks only persist in Postgres.
			if cfg.Postgres.URL == "" {
				return errors.New("unlock requires postgres.url")
			}
			log := logger.New(logger.Options{Level: cfg.Log.Level, File: cfg.Log.File})
			defer func() { _ = log.Sync() }()

			d, err := buildDeps(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := d.service.Unlock(cmd.Context(), quizID, studentID); err != nil {
				log.Error("unlock failed", zap.Error(err))
				return err
			}
			cmd.Printf("unlocked %s for %s\n", quizID, studentID)
			return nil
		},
	}
	cmd.Flags().StringVar(&quizID, "quiz", "", "quiz id")
	cmd.Flags().StringVar(&studentID, "student", "", "student id")
	_ = cmd.MarkFlagRequired("quiz")
	_ = cmd.MarkFlagRequired("student")
	return cmd
}
