package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	SessionsOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_sessions_opened_total",
			Help: "Attempt sessions opened, by initial state",
		},
		[]string{"state"},
	)

	Warnings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_warnings_total",
			Help: "Warnings issued to students, by triggering signal",
		},
		[]string{"signal"},
	)

	Locks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_locks_total",
			Help: "Quizzes locked after reaching the warning threshold",
		},
	)

	LockWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "quiz_lock_write_failures_total",
			Help: "Lock records that could not be persisted after retries",
		},
	)

	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_submissions_total",
			Help: "Submission writes, by result",
		},
		[]string{"result"},
	)
)

var registerOnce sync.Once

// Register adds the collectors to the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(SessionsOpened, Warnings, Locks, LockWriteFailures, Submissions)
	})
}
