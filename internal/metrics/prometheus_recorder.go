package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once            sync.Once
	phaseDuration   *prom.HistogramVec
	sessionDuration prom.Histogram
	phaseResults    *prom.CounterVec
	sessionOutcomes *prom.CounterVec
	sessionsStarted *prom.CounterVec
	linesClassified *prom.CounterVec
	fixSuggestions  *prom.CounterVec
	conflicts       prom.Counter
	persistRetries  *prom.CounterVec
	persistFailures *prom.CounterVec
	activeSessions  prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.phaseDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "buildmon",
			Name:      "phase_duration_seconds",
			Help:      "Duration of individual build phases",
			Buckets:   prom.DefBuckets,
		}, []string{"phase"})
		pr.sessionDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "buildmon",
			Name:      "session_duration_seconds",
			Help:      "Total session duration from spawn to terminal state",
			Buckets:   prom.DefBuckets,
		})
		pr.phaseResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "buildmon",
			Name:      "phase_results_total",
			Help:      "Phase result counts by outcome",
		}, []string{"phase", "result"})
		pr.sessionOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "buildmon",
			Name:      "session_outcomes_total",
			Help:      "Session outcomes by final status",
		}, []string{"outcome"})
		pr.sessionsStarted = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "buildmon",
			Name:      "sessions_started_total",
			Help:      "Sessions started by execution mode",
		}, []string{"mode"})
		pr.linesClassified = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "buildmon",
			Name:      "output_lines_total",
			Help:      "Classified output lines by severity",
		}, []string{"severity"})
		pr.fixSuggestions = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "buildmon",
			Name:      "fix_suggestions_total",
			Help:      "Fix suggestions emitted by pattern name",
		}, []string{"pattern"})
		pr.conflicts = prom.NewCounter(prom.CounterOpts{
			Namespace: "buildmon",
			Name:      "conflicts_detected_total",
			Help:      "Concurrent build-tool conflicts detected",
		})
		pr.persistRetries = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "buildmon",
			Name:      "persist_retries_total",
			Help:      "State persistence retries by object",
		}, []string{"object"})
		pr.persistFailures = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "buildmon",
			Name:      "persist_failures_total",
			Help:      "State persistence failures after retry by object",
		}, []string{"object"})
		pr.activeSessions = prom.NewGauge(prom.GaugeOpts{
			Namespace: "buildmon",
			Name:      "active_sessions",
			Help:      "Sessions currently in a non-terminal state",
		})
		reg.MustRegister(pr.phaseDuration, pr.sessionDuration, pr.phaseResults, pr.sessionOutcomes, pr.sessionsStarted, pr.linesClassified, pr.fixSuggestions, pr.conflicts, pr.persistRetries, pr.persistFailures, pr.activeSessions)
	})
	return pr
}

func (p *PrometheusRecorder) ObservePhaseDuration(phase string, d time.Duration) {
	if p == nil || p.phaseDuration == nil {
		return
	}
	p.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveSessionDuration(d time.Duration) {
	if p == nil || p.sessionDuration == nil {
		return
	}
	p.sessionDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncPhaseResult(phase string, result ResultLabel) {
	if p == nil || p.phaseResults == nil {
		return
	}
	p.phaseResults.WithLabelValues(phase, string(result)).Inc()
}

func (p *PrometheusRecorder) IncSessionOutcome(outcome OutcomeLabel) {
	if p == nil || p.sessionOutcomes == nil {
		return
	}
	p.sessionOutcomes.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncSessionStarted(mode string) {
	if p == nil || p.sessionsStarted == nil {
		return
	}
	p.sessionsStarted.WithLabelValues(mode).Inc()
}

func (p *PrometheusRecorder) IncLineClassified(severity string) {
	if p == nil || p.linesClassified == nil {
		return
	}
	p.linesClassified.WithLabelValues(severity).Inc()
}

func (p *PrometheusRecorder) IncFixSuggested(pattern string) {
	if p == nil || p.fixSuggestions == nil {
		return
	}
	p.fixSuggestions.WithLabelValues(pattern).Inc()
}

func (p *PrometheusRecorder) IncConflictDetected() {
	if p == nil || p.conflicts == nil {
		return
	}
	p.conflicts.Inc()
}

func (p *PrometheusRecorder) IncPersistRetry(object string) {
	if p == nil || p.persistRetries == nil {
		return
	}
	p.persistRetries.WithLabelValues(object).Inc()
}

func (p *PrometheusRecorder) IncPersistFailure(object string) {
	if p == nil || p.persistFailures == nil {
		return
	}
	p.persistFailures.WithLabelValues(object).Inc()
}

func (p *PrometheusRecorder) SetActiveSessions(n int) {
	if p == nil || p.activeSessions == nil {
		return
	}
	p.activeSessions.Set(float64(n))
}
