package metrics

import (
	"testing"
	"time"
)

var _ Recorder = (*testRecorder)(nil)
var _ Recorder = NoopRecorder{}

type testRecorder struct {
	phaseDurations   map[string]int
	phaseResults     map[string]map[ResultLabel]int
	sessionDurations int
	sessionOutcomes  map[OutcomeLabel]int
	linesBySeverity  map[string]int
	active           int
}

func newTestRecorder() *testRecorder {
	return &testRecorder{
		phaseDurations:  map[string]int{},
		phaseResults:    map[string]map[ResultLabel]int{},
		sessionOutcomes: map[OutcomeLabel]int{},
		linesBySeverity: map[string]int{},
	}
}

func (t *testRecorder) ObservePhaseDuration(phase string, _ time.Duration) {
	t.phaseDurations[phase]++
}
func (t *testRecorder) ObserveSessionDuration(_ time.Duration) { t.sessionDurations++ }
func (t *testRecorder) IncPhaseResult(phase string, result ResultLabel) {
	m, ok := t.phaseResults[phase]
	if !ok {
		m = map[ResultLabel]int{}
		t.phaseResults[phase] = m
	}
	m[result]++
}
func (t *testRecorder) IncSessionOutcome(outcome OutcomeLabel) { t.sessionOutcomes[outcome]++ }
func (t *testRecorder) IncSessionStarted(string)               {}
func (t *testRecorder) IncLineClassified(severity string)      { t.linesBySeverity[severity]++ }
func (t *testRecorder) IncFixSuggested(string)                 {}
func (t *testRecorder) IncConflictDetected()                   {}
func (t *testRecorder) IncPersistRetry(string)                 {}
func (t *testRecorder) IncPersistFailure(string)               {}
func (t *testRecorder) SetActiveSessions(n int)                { t.active = n }

func TestRecorderCapture(t *testing.T) {
	rec := newTestRecorder()

	var r Recorder = rec
	r.ObservePhaseDuration("configure", 100*time.Millisecond)
	r.ObservePhaseDuration("build", 2*time.Second)
	r.IncPhaseResult("build", ResultSuccess)
	r.IncSessionOutcome(OutcomeCompleted)
	r.IncLineClassified("warning")
	r.IncLineClassified("warning")
	r.SetActiveSessions(3)

	if rec.phaseDurations["configure"] != 1 || rec.phaseDurations["build"] != 1 {
		t.Errorf("phase durations not captured: %v", rec.phaseDurations)
	}
	if rec.phaseResults["build"][ResultSuccess] != 1 {
		t.Error("phase result not captured")
	}
	if rec.sessionOutcomes[OutcomeCompleted] != 1 {
		t.Error("session outcome not captured")
	}
	if rec.linesBySeverity["warning"] != 2 {
		t.Errorf("expected 2 warning lines, got %d", rec.linesBySeverity["warning"])
	}
	if rec.active != 3 {
		t.Errorf("expected active=3, got %d", rec.active)
	}
}

func TestNoopRecorderIsSilent(t *testing.T) {
	// A nil PrometheusRecorder and the NoopRecorder must both be safe to call.
	var pr *PrometheusRecorder
	pr.ObserveSessionDuration(time.Second)
	pr.IncConflictDetected()
	pr.SetActiveSessions(1)

	var noop NoopRecorder
	noop.ObserveSessionDuration(time.Second)
	noop.IncConflictDetected()
	noop.SetActiveSessions(1)
}
