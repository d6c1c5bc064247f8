// Package health derives a composite build health score from recorded
// outcomes.
package health

import (
	"context"
	"math"

	"git.home.luguber.info/inful/buildmon/internal/config"
	"git.home.luguber.info/inful/buildmon/internal/foundation"
	"git.home.luguber.info/inful/buildmon/internal/history"
)

// Component weights of the composite score. They sum to 100.
const (
	successWeight  = 40
	speedWeight    = 25
	warningWeight  = 20
	resourceWeight = 15
)

// Limits control when and how the score is computed.
type Limits struct {
	MinOutcomes    int     // below this no score is produced
	MedianMultiple float64 // speed score reaches 0 at median times this
	PeakCPULimit   float64 // percent
	PeakMemoryMB   int
}

// DefaultLimits matches the configuration defaults.
func DefaultLimits() Limits {
	return Limits{MinOutcomes: 5, MedianMultiple: 2.0, PeakCPULimit: 80, PeakMemoryMB: 1024}
}

// LimitsFromConfig builds Limits from configuration, falling back to
// defaults for unset values.
func LimitsFromConfig(cfg config.HealthConfig) Limits {
	l := DefaultLimits()
	if cfg.MinOutcomes > 0 {
		l.MinOutcomes = cfg.MinOutcomes
	}
	if cfg.MedianMultiple > 1 {
		l.MedianMultiple = cfg.MedianMultiple
	}
	if cfg.PeakCPULimit > 0 {
		l.PeakCPULimit = cfg.PeakCPULimit
	}
	if cfg.PeakMemoryMB > 0 {
		l.PeakMemoryMB = cfg.PeakMemoryMB
	}
	return l
}

// Score is the composite health result with its component scores.
type Score struct {
	Value       int     `json:"value"`
	SuccessRate float64 `json:"success_rate"`
	Speed       float64 `json:"speed_score"`
	Warning     float64 `json:"warning_score"`
	Resource    float64 `json:"resource_score"`
}

// Scorer produces a health score for a project.
type Scorer interface {
	Score(ctx context.Context, project, key string) (foundation.Option[Score], error)
}

// StoreScorer scores from the SQLite-backed outcome windows. The duration
// median for the key gives the speed baseline.
type StoreScorer struct {
	store  *history.Store
	limits Limits
}

// NewScorer builds a scorer over the given store.
func NewScorer(store *history.Store, limits Limits) *StoreScorer {
	def := DefaultLimits()
	if limits.MinOutcomes <= 0 {
		limits.MinOutcomes = def.MinOutcomes
	}
	if limits.MedianMultiple <= 1 {
		limits.MedianMultiple = def.MedianMultiple
	}
	if limits.PeakCPULimit <= 0 {
		limits.PeakCPULimit = def.PeakCPULimit
	}
	if limits.PeakMemoryMB <= 0 {
		limits.PeakMemoryMB = def.PeakMemoryMB
	}
	return &StoreScorer{store: store, limits: limits}
}

func (s *StoreScorer) Score(ctx context.Context, project, key string) (foundation.Option[Score], error) {
	outcomes, err := s.store.Outcomes(ctx, project)
	if err != nil {
		return foundation.None[Score](), err
	}
	median, err := s.store.MedianDuration(ctx, key)
	if err != nil {
		return foundation.None[Score](), err
	}
	return Compute(outcomes, median, s.limits), nil
}

// Compute scores a window of outcomes, oldest first. Below the outcome
// minimum it returns None, never a default.
func Compute(outcomes []history.Outcome, median foundation.Option[float64], limits Limits) foundation.Option[Score] {
	if len(outcomes) == 0 || len(outcomes) < limits.MinOutcomes {
		return foundation.None[Score]()
	}

	successRate := fractionSuccessful(outcomes)
	speed := speedScore(outcomes[len(outcomes)-1].DurationSeconds, median, limits.MedianMultiple)
	warning := warningScore(outcomes)
	resource := resourceScore(outcomes, limits)

	value := math.Round(successWeight*successRate + speedWeight*speed + warningWeight*warning + resourceWeight*resource)
	if value < 0 {
		value = 0
	}
	if value > 100 {
		value = 100
	}

	return foundation.Some(Score{
		Value:       int(value),
		SuccessRate: successRate,
		Speed:       speed,
		Warning:     warning,
		Resource:    resource,
	})
}

func fractionSuccessful(outcomes []history.Outcome) float64 {
	succeeded := 0
	for _, o := range outcomes {
		if o.Success {
			succeeded++
		}
	}
	return float64(succeeded) / float64(len(outcomes))
}

// speedScore is 1.0 for the newest duration at or below the historical
// median, falling linearly to 0 at multiple times the median. Without a
// median the score is the neutral 0.8.
func speedScore(duration float64, median foundation.Option[float64], multiple float64) float64 {
	if median.IsNone() {
		return 0.8
	}
	m := median.Unwrap()
	if m <= 0 || duration <= m {
		return 1.0
	}
	ceiling := m * multiple
	if duration >= ceiling {
		return 0
	}
	return 1 - (duration-m)/(ceiling-m)
}

// warningScore brackets the mean warning count over the window.
func warningScore(outcomes []history.Outcome) float64 {
	total := 0
	for _, o := range outcomes {
		total += o.WarningCount
	}
	avg := float64(total) / float64(len(outcomes))
	switch {
	case avg == 0:
		return 1.0
	case avg <= 2:
		return 0.9
	case avg <= 5:
		return 0.75
	case avg <= 10:
		return 0.6
	case avg <= 20:
		return 0.4
	default:
		return 0.2
	}
}

// resourceScore is 1.0 while the window's peak CPU and memory stay at or
// under their limits, falling linearly to 0 at twice the exceeded limit.
func resourceScore(outcomes []history.Outcome, limits Limits) float64 {
	var peakCPU float64
	var peakMemory uint64
	for _, o := range outcomes {
		if o.PeakCPUPercent > peakCPU {
			peakCPU = o.PeakCPUPercent
		}
		if o.PeakMemoryBytes > peakMemory {
			peakMemory = o.PeakMemoryBytes
		}
	}

	cpuScore := overLimitScore(peakCPU, limits.PeakCPULimit)
	memScore := overLimitScore(float64(peakMemory)/(1<<20), float64(limits.PeakMemoryMB))
	return math.Min(cpuScore, memScore)
}

// overLimitScore maps value at or below limit to 1.0, decaying linearly to
// 0 at twice the limit.
func overLimitScore(value, limit float64) float64 {
	if limit <= 0 || value <= limit {
		return 1.0
	}
	score := 1 - (value-limit)/limit
	if score < 0 {
		return 0
	}
	return score
}

// NoopScorer never scores. Selected when health scoring is disabled.
type NoopScorer struct{}

func (NoopScorer) Score(context.Context, string, string) (foundation.Option[Score], error) {
	return foundation.None[Score](), nil
}
