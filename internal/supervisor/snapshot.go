package supervisor

import (
	"time"

	"git.home.luguber.info/inful/buildmon/internal/buildcmd"
	"git.home.luguber.info/inful/buildmon/internal/deps"
	"git.home.luguber.info/inful/buildmon/internal/foundation"
	"git.home.luguber.info/inful/buildmon/internal/health"
	"git.home.luguber.info/inful/buildmon/internal/history"
)

// Snapshot is the externally visible state of a session at one instant.
// It is what status serves and what the registry persists, so a snapshot
// written before a crash restores into a readable session.
//
// ReturnCode carries no omitempty: a null return code is meaningful (the
// process has not exited, or was terminated mid-build and the code is
// deliberately unknown).
type Snapshot struct {
	BuildID             string              `json:"build_id"`
	Status              Status              `json:"status"`
	Phase               string              `json:"phase,omitempty"`
	Targets             []string            `json:"targets,omitempty"`
	Background          bool                `json:"background"`
	PID                 int                 `json:"pid,omitempty"`
	StartedAt           time.Time           `json:"started_at"`
	EndedAt             *time.Time          `json:"ended_at,omitempty"`
	DurationSeconds     float64             `json:"duration_seconds"`
	ReturnCode          *int                `json:"return_code"`
	Errors              []ErrorRecord       `json:"errors,omitempty"`
	ErrorCount          int                 `json:"error_count"`
	WarningCount        int                 `json:"warning_count"`
	ETA                 string              `json:"eta,omitempty"`
	Prediction          *history.Prediction `json:"prediction,omitempty"`
	ResourceUsage       string              `json:"resource_usage,omitempty"`
	ResourcePeak        string              `json:"resource_peak,omitempty"`
	HealthScore         *int                `json:"health_score,omitempty"`
	DependencyChanges   []deps.Change       `json:"dependency_changes,omitempty"`
	BuildRecommendation string              `json:"build_recommendation,omitempty"`
	Warnings            []string            `json:"warnings,omitempty"`
	OutputLines         int                 `json:"output_lines"`
	DroppedLines        int                 `json:"dropped_lines,omitempty"`
	Context             buildcmd.Context    `json:"context"`
}

// Snapshot assembles the current view of the session under its lock.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(time.Now())
}

func (s *Session) snapshotLocked(now time.Time) Snapshot {
	snap := Snapshot{
		BuildID:      s.id,
		Status:       s.status,
		Phase:        string(s.phase),
		Targets:      s.plan.SortedTargets(),
		Background:   s.plan.Background,
		StartedAt:    s.created,
		ReturnCode:   s.exitCode.ToPointer(),
		ErrorCount:   s.errorCount,
		WarningCount: s.warningCount,
		OutputLines:  s.totalLines,
		DroppedLines: s.droppedLines,
		Context:      s.buildContext,
	}

	end := now
	if !s.ended.IsZero() {
		end = s.ended
		ended := s.ended
		snap.EndedAt = &ended
	}
	snap.DurationSeconds = end.Sub(s.created).Seconds()

	if s.status.Active() && s.pid > 0 {
		snap.PID = s.pid
	}
	if len(s.errors) > 0 {
		snap.Errors = append([]ErrorRecord(nil), s.errors...)
	}
	if len(s.warnings) > 0 {
		snap.Warnings = append([]string(nil), s.warnings...)
	}

	s.prediction.Match(func(p history.Prediction) {
		pred := p
		snap.Prediction = &pred
		if s.status.Active() {
			snap.ETA = p.Display()
		}
	}, func() {})

	if s.usage != nil {
		if summary, ok := s.usage.Summary(); ok {
			snap.ResourceUsage = summary
		}
		if peak, ok := s.usage.Peak(); ok {
			snap.ResourcePeak = peak
		}
	} else {
		snap.ResourceUsage = s.archivedUsage
		snap.ResourcePeak = s.archivedPeak
	}

	s.healthScore.Match(func(h health.Score) {
		value := h.Value
		snap.HealthScore = &value
	}, func() {
		if s.archivedHealth != nil {
			value := *s.archivedHealth
			snap.HealthScore = &value
		}
	})

	if len(s.depReport.Changes) > 0 {
		snap.DependencyChanges = append([]deps.Change(nil), s.depReport.Changes...)
	}
	if s.depReport.Impact != "" && s.depReport.Impact != deps.ImpactNone {
		snap.BuildRecommendation = string(s.depReport.Impact)
	}

	return snap
}

// restoredSession rebuilds an inert session from a persisted snapshot. It
// has no process and no supervising goroutine; it only serves status and
// report requests.
func restoredSession(snap Snapshot) *Session {
	ended := time.Time{}
	if snap.EndedAt != nil {
		ended = *snap.EndedAt
	} else if snap.DurationSeconds > 0 {
		ended = snap.StartedAt.Add(time.Duration(snap.DurationSeconds * float64(time.Second)))
	} else {
		ended = snap.StartedAt
	}

	report := deps.Report{Changes: snap.DependencyChanges, Impact: deps.ImpactNone}
	if snap.BuildRecommendation != "" {
		report.Impact = deps.Impact(snap.BuildRecommendation)
	}

	return &Session{
		id: snap.BuildID,
		plan: buildcmd.Plan{
			Targets:    snap.Targets,
			Background: snap.Background,
		},
		buildContext:   snap.Context,
		status:         snap.Status,
		phase:          buildcmd.Phase(snap.Phase),
		created:        snap.StartedAt,
		ended:          ended,
		exitCode:       foundation.FromPointer(snap.ReturnCode),
		totalLines:     snap.OutputLines,
		droppedLines:   snap.DroppedLines,
		errors:         snap.Errors,
		errorCount:     snap.ErrorCount,
		warningCount:   snap.WarningCount,
		prediction:     foundation.FromPointer(snap.Prediction),
		healthScore:    foundation.None[health.Score](),
		depReport:      report,
		warnings:       snap.Warnings,
		archivedUsage:  snap.ResourceUsage,
		archivedPeak:   snap.ResourcePeak,
		archivedHealth: snap.HealthScore,
	}
}
