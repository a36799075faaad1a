package app_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"quiz-integrity-service/internal/domain"
	"quiz-integrity-service/internal/metrics"
)

func TestSessionRecordsMetrics(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, capitalsQuiz(false))

	opened := testutil.ToFloat64(metrics.SessionsOpened.WithLabelValues(string(domain.StateAnswering)))
	blurs := testutil.ToFloat64(metrics.Warnings.WithLabelValues(string(domain.SignalBlur)))
	locks := testutil.ToFloat64(metrics.Locks)
	saved := testutil.ToFloat64(metrics.Submissions.WithLabelValues("ok"))

	session := h.open(t, nil)
	for i := 0; i < 3; i++ {
		mustView(t)(session.Signal(ctx, domain.Signal{Kind: domain.SignalBlur}))
		mustView(t)(session.Signal(ctx, domain.Signal{Kind: domain.SignalReturn}))
	}
	session.Wait()

	if got := testutil.ToFloat64(metrics.SessionsOpened.WithLabelValues(string(domain.StateAnswering))) - opened; got != 1 {
		t.Fatalf("expected one opened session, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.Warnings.WithLabelValues(string(domain.SignalBlur))) - blurs; got != 3 {
		t.Fatalf("expected three blur warnings, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.Locks) - locks; got != 1 {
		t.Fatalf("expected one lock, got %v", got)
	}

	h2 := newHarness(t, capitalsQuiz(false))
	second := h2.open(t, nil)
	answerAll(t, second)
	mustView(t)(second.Submit(ctx))
	if got := testutil.ToFloat64(metrics.Submissions.WithLabelValues("ok")) - saved; got != 1 {
		t.Fatalf("expected one saved submission, got %v", got)
	}
}
