package history

import (
	"context"
	"fmt"
	"math"
	"time"

	"git.home.luguber.info/inful/buildmon/internal/config"
	"git.home.luguber.info/inful/buildmon/internal/foundation"
)

// Prediction is an estimated completion for a build that just started.
type Prediction struct {
	DurationSeconds float64   `json:"duration_seconds"`
	ETA             time.Time `json:"eta"`
	Confidence      float64   `json:"confidence"`
	Samples         int       `json:"samples"`
}

// Display renders the compact "<seconds>s@<HH:MM>" form.
func (p Prediction) Display() string {
	return fmt.Sprintf("%ds@%s", int(math.Round(p.DurationSeconds)), p.ETA.Format("15:04"))
}

// Predictor estimates build durations from recorded history.
type Predictor interface {
	Predict(ctx context.Context, key string, start time.Time) (foundation.Option[Prediction], error)
}

// Tuning controls the prediction window arithmetic.
type Tuning struct {
	MinSamples   int     // below this no prediction is made
	RecentWindow int     // most recent N samples considered
	OutlierSigma float64 // samples beyond this many deviations from the mean are dropped
}

// DefaultTuning matches the configuration defaults.
func DefaultTuning() Tuning {
	return Tuning{MinSamples: 3, RecentWindow: 10, OutlierSigma: 2.5}
}

// TuningFromConfig builds Tuning from configuration, falling back to
// defaults for unset values.
func TuningFromConfig(cfg config.HistoryConfig) Tuning {
	t := DefaultTuning()
	if cfg.MinSamples > 0 {
		t.MinSamples = cfg.MinSamples
	}
	if cfg.RecentWeights > 0 {
		t.RecentWindow = cfg.RecentWeights
	}
	if cfg.OutlierSigma > 0 {
		t.OutlierSigma = cfg.OutlierSigma
	}
	return t
}

// StorePredictor predicts from the SQLite-backed sample windows.
type StorePredictor struct {
	store  *Store
	tuning Tuning
}

// NewPredictor builds a predictor over the given store.
func NewPredictor(store *Store, tuning Tuning) *StorePredictor {
	def := DefaultTuning()
	if tuning.MinSamples <= 0 {
		tuning.MinSamples = def.MinSamples
	}
	if tuning.RecentWindow <= 0 {
		tuning.RecentWindow = def.RecentWindow
	}
	if tuning.OutlierSigma <= 0 {
		tuning.OutlierSigma = def.OutlierSigma
	}
	return &StorePredictor{store: store, tuning: tuning}
}

// Predict returns None when the key has fewer recorded samples than the
// minimum. The estimate is a recency-weighted mean of the most recent
// samples with outliers removed.
func (p *StorePredictor) Predict(ctx context.Context, key string, start time.Time) (foundation.Option[Prediction], error) {
	samples, err := p.store.Samples(ctx, key)
	if err != nil {
		return foundation.None[Prediction](), err
	}
	if len(samples) < p.tuning.MinSamples {
		return foundation.None[Prediction](), nil
	}

	durations := make([]float64, len(samples))
	for i, sm := range samples {
		durations[i] = sm.DurationSeconds
	}
	recent := durations
	if len(recent) > p.tuning.RecentWindow {
		recent = recent[len(recent)-p.tuning.RecentWindow:]
	}
	kept := dropOutliers(recent, p.tuning.OutlierSigma, p.tuning.MinSamples)

	estimate := weightedMean(kept)
	confidence := math.Min(1, float64(len(samples))/float64(p.tuning.MinSamples))

	return foundation.Some(Prediction{
		DurationSeconds: estimate,
		ETA:             start.Add(time.Duration(estimate * float64(time.Second))),
		Confidence:      confidence,
		Samples:         len(samples),
	}), nil
}

// dropOutliers removes values beyond sigma standard deviations from the
// mean. If fewer than keep values would remain, the input is returned
// unchanged.
func dropOutliers(durations []float64, sigma float64, keep int) []float64 {
	if len(durations) <= keep {
		return durations
	}

	mean := meanOf(durations)
	variance := 0.0
	for _, d := range durations {
		variance += (d - mean) * (d - mean)
	}
	stddev := math.Sqrt(variance / float64(len(durations)))
	if stddev == 0 {
		return durations
	}

	kept := durations[:0:0]
	for _, d := range durations {
		if math.Abs(d-mean) <= sigma*stddev {
			kept = append(kept, d)
		}
	}
	if len(kept) < keep {
		return durations
	}
	return kept
}

// weightedMean weights later entries higher: 0.5 + 0.1*(i+1) oldest to
// newest.
func weightedMean(durations []float64) float64 {
	var weightedSum, weightSum float64
	for i, d := range durations {
		w := 0.5 + 0.1*float64(i+1)
		weightedSum += d * w
		weightSum += w
	}
	return weightedSum / weightSum
}

func meanOf(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// NoopPredictor never predicts. Selected when history is disabled.
type NoopPredictor struct{}

func (NoopPredictor) Predict(context.Context, string, time.Time) (foundation.Option[Prediction], error) {
	return foundation.None[Prediction](), nil
}
