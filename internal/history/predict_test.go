package history

import (
	"context"
	"math"
	"testing"
	"time"
)

func seedDurations(t *testing.T, store *Store, key string, durations ...float64) {
	t.Helper()
	ctx := context.Background()
	at := time.Unix(1_700_000_000, 0)
	for i, d := range durations {
		if err := store.RecordDuration(ctx, key, d, at.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("RecordDuration: %v", err)
		}
	}
}

func TestPredictWithoutHistory(t *testing.T) {
	store := openTestStore(t, DefaultBounds())
	p := NewPredictor(store, DefaultTuning())

	got, err := p.Predict(context.Background(), "full_build_j4", time.Now())
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if got.IsSome() {
		t.Fatal("expected no prediction without history")
	}
}

func TestPredictMinSampleBoundary(t *testing.T) {
	store := openTestStore(t, DefaultBounds())
	p := NewPredictor(store, DefaultTuning())
	ctx := context.Background()

	seedDurations(t, store, "full_build_j4", 100, 110)
	got, err := p.Predict(ctx, "full_build_j4", time.Now())
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if got.IsSome() {
		t.Fatal("2 samples must not predict")
	}

	seedDurations(t, store, "full_build_j4", 105)
	got, err = p.Predict(ctx, "full_build_j4", time.Now())
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if got.IsNone() {
		t.Fatal("3 samples must predict")
	}
}

func TestPredictAfterThreeBuilds(t *testing.T) {
	store := openTestStore(t, DefaultBounds())
	p := NewPredictor(store, DefaultTuning())

	seedDurations(t, store, "full_build_j4", 100, 110, 105)

	start := time.Date(2025, 3, 14, 14, 30, 0, 0, time.UTC)
	got, err := p.Predict(context.Background(), "full_build_j4", start)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if got.IsNone() {
		t.Fatal("expected a prediction")
	}

	pred := got.Unwrap()
	// (100*0.6 + 110*0.7 + 105*0.8) / 2.1
	if math.Abs(pred.DurationSeconds-105.238) > 0.01 {
		t.Errorf("estimate = %v, want ~105.24", pred.DurationSeconds)
	}
	if pred.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", pred.Confidence)
	}
	if pred.Samples != 3 {
		t.Errorf("samples = %d, want 3", pred.Samples)
	}
	wantETA := start.Add(time.Duration(pred.DurationSeconds * float64(time.Second)))
	if !pred.ETA.Equal(wantETA) {
		t.Errorf("eta = %v, want %v", pred.ETA, wantETA)
	}
	if got := pred.Display(); got != "105s@14:31" {
		t.Errorf("display = %q, want %q", got, "105s@14:31")
	}
}

func TestPredictDropsOutliers(t *testing.T) {
	store := openTestStore(t, DefaultBounds())
	p := NewPredictor(store, DefaultTuning())

	durations := make([]float64, 0, 10)
	for i := 0; i < 9; i++ {
		durations = append(durations, 100)
	}
	durations = append(durations, 1000)
	seedDurations(t, store, "full_build_j4", durations...)

	got, err := p.Predict(context.Background(), "full_build_j4", time.Now())
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	pred := got.Unwrap()
	if math.Abs(pred.DurationSeconds-100) > 1e-6 {
		t.Errorf("estimate = %v, want 100 (outlier kept?)", pred.DurationSeconds)
	}
}

func TestPredictUsesRecentWindow(t *testing.T) {
	store := openTestStore(t, DefaultBounds())
	p := NewPredictor(store, DefaultTuning())

	durations := make([]float64, 0, 15)
	for i := 0; i < 5; i++ {
		durations = append(durations, 500)
	}
	for i := 0; i < 10; i++ {
		durations = append(durations, 100)
	}
	seedDurations(t, store, "full_build_j4", durations...)

	got, err := p.Predict(context.Background(), "full_build_j4", time.Now())
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	pred := got.Unwrap()
	if math.Abs(pred.DurationSeconds-100) > 1e-6 {
		t.Errorf("estimate = %v, want 100 (old samples leaked in)", pred.DurationSeconds)
	}
	if pred.Samples != 15 {
		t.Errorf("samples = %d, want 15", pred.Samples)
	}
}

func TestNoopPredictor(t *testing.T) {
	got, err := NoopPredictor{}.Predict(context.Background(), "full_build_j4", time.Now())
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if got.IsSome() {
		t.Fatal("noop predictor must not predict")
	}
}

func TestPredictionDisplay(t *testing.T) {
	eta := time.Date(2025, 3, 14, 9, 5, 0, 0, time.UTC)
	p := Prediction{DurationSeconds: 42.6, ETA: eta}
	if got := p.Display(); got != "43s@09:05" {
		t.Errorf("display = %q, want %q", got, "43s@09:05")
	}
}
