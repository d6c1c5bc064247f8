package metrics

import "time"

// ResultLabel enumerates phase result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultWarning  ResultLabel = "warning"
	ResultFatal    ResultLabel = "fatal"
	ResultCanceled ResultLabel = "canceled"
)

// OutcomeLabel enumerates terminal session outcomes for counters.
type OutcomeLabel string

const (
	OutcomeCompleted  OutcomeLabel = "completed"
	OutcomeFailed     OutcomeLabel = "failed"
	OutcomeTerminated OutcomeLabel = "terminated"
)

// Recorder defines observability hooks for session and phase metrics. Implementations
// may forward to Prometheus, OpenTelemetry, etc. All methods must be safe for nil receivers
// when using the NoopRecorder (allowing optional injection).
type Recorder interface {
	ObservePhaseDuration(phase string, d time.Duration)
	ObserveSessionDuration(d time.Duration)
	IncPhaseResult(phase string, result ResultLabel)
	IncSessionOutcome(outcome OutcomeLabel)
	IncSessionStarted(mode string) // mode: foreground|background
	IncLineClassified(severity string)
	IncFixSuggested(pattern string)
	IncConflictDetected()
	IncPersistRetry(object string)
	IncPersistFailure(object string)
	SetActiveSessions(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObservePhaseDuration(string, time.Duration) {}
func (NoopRecorder) ObserveSessionDuration(time.Duration)       {}
func (NoopRecorder) IncPhaseResult(string, ResultLabel)         {}
func (NoopRecorder) IncSessionOutcome(OutcomeLabel)             {}
func (NoopRecorder) IncSessionStarted(string)                   {}
func (NoopRecorder) IncLineClassified(string)                   {}
func (NoopRecorder) IncFixSuggested(string)                     {}
func (NoopRecorder) IncConflictDetected()                       {}
func (NoopRecorder) IncPersistRetry(string)                     {}
func (NoopRecorder) IncPersistFailure(string)                   {}
func (NoopRecorder) SetActiveSessions(int)                      {}
