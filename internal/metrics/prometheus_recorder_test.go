package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObservePhaseDuration("configure", 150*time.Millisecond)
	pr.ObserveSessionDuration(500 * time.Millisecond)
	pr.IncPhaseResult("configure", ResultSuccess)
	pr.IncSessionOutcome(OutcomeCompleted)
	pr.IncSessionStarted("background")
	pr.IncLineClassified("error")
	pr.IncFixSuggested("openssl")
	pr.IncConflictDetected()
	pr.IncPersistRetry("sessions")
	pr.IncPersistFailure("sessions")
	pr.SetActiveSessions(2)
	// Basic scrape to ensure metrics encode without panic
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) == 0 {
		t.Fatalf("expected metrics, got none")
	}
}

func TestPrometheusRecorderNilRegistry(t *testing.T) {
	pr := NewPrometheusRecorder(nil)
	if pr == nil {
		t.Fatal("expected recorder")
	}
	// Metrics registered against an internal registry; calls must not panic.
	pr.ObserveSessionDuration(time.Second)
	pr.IncSessionOutcome(OutcomeFailed)
}
