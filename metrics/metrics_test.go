package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveAttempt(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry, Config{ServiceName: "dentizy", Environment: "test"})

	m.ObserveAttempt(AttemptOutcomeRetried)
	m.ObserveAttempt(AttemptOutcomeRetried)
	m.ObserveAttempt(AttemptOutcomeCommitted)

	if got := testutil.ToFloat64(m.attempts.WithLabelValues(AttemptOutcomeRetried)); got != 2 {
		t.Fatalf("expected 2 retried attempts, got %v", got)
	}
	if got := testutil.ToFloat64(m.attempts.WithLabelValues(AttemptOutcomeCommitted)); got != 1 {
		t.Fatalf("expected 1 committed attempt, got %v", got)
	}
}

func TestObserveRetry(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry, Config{})

	m.ObserveRetry("deadlock", 200*time.Millisecond)

	if got := testutil.ToFloat64(m.retryReasons.WithLabelValues("deadlock")); got != 1 {
		t.Fatalf("expected 1 deadlock retry, got %v", got)
	}
	if got := testutil.CollectAndCount(m.backoff); got != 1 {
		t.Fatalf("expected backoff histogram to be collected, got %d", got)
	}
}

func TestObserveCodeIssued(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry, Config{})

	m.ObserveCodeIssued(1)
	m.ObserveCodeIssued(2)
	m.ObserveCapacityExceeded()

	if got := testutil.ToFloat64(m.codesIssued); got != 2 {
		t.Fatalf("expected 2 issued codes, got %v", got)
	}
	if got := testutil.ToFloat64(m.codesIssuedToday); got != 2 {
		t.Fatalf("expected gauge 2, got %v", got)
	}
	if got := testutil.ToFloat64(m.capacityExceeded); got != 1 {
		t.Fatalf("expected 1 capacity rejection, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveAttempt(AttemptOutcomeFailed)
	m.ObserveRetry("busy", time.Second)
	m.ObserveCodeIssued(3)
	m.ObserveCapacityExceeded()
}
