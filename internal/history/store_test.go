package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func openTestStore(t *testing.T, bounds Bounds) *Store {
	t.Helper()
	store, err := Open(":memory:", bounds)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordDurationEvictsOldest(t *testing.T) {
	store := openTestStore(t, Bounds{HistoryWindow: 5, HealthWindow: 10})
	ctx := context.Background()
	at := time.Unix(1_700_000_000, 0)

	for i := 0; i < 7; i++ {
		if err := store.RecordDuration(ctx, "full_build_j4", float64(100+i), at.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("RecordDuration: %v", err)
		}
	}

	samples, err := store.Samples(ctx, "full_build_j4")
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(samples) != 5 {
		t.Fatalf("got %d samples, want 5", len(samples))
	}
	for i, sm := range samples {
		if want := float64(102 + i); sm.DurationSeconds != want {
			t.Errorf("sample %d = %v, want %v", i, sm.DurationSeconds, want)
		}
	}
}

func TestSamplesAreKeyIsolated(t *testing.T) {
	store := openTestStore(t, DefaultBounds())
	ctx := context.Background()
	now := time.Now()

	if err := store.RecordDuration(ctx, "full_build_j4", 100, now); err != nil {
		t.Fatalf("RecordDuration: %v", err)
	}
	if err := store.RecordDuration(ctx, "full_build_j8", 50, now); err != nil {
		t.Fatalf("RecordDuration: %v", err)
	}

	samples, err := store.Samples(ctx, "full_build_j4")
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(samples) != 1 || samples[0].DurationSeconds != 100 {
		t.Fatalf("unexpected samples: %+v", samples)
	}
}

func TestRecordOutcomeWindowAndRoundTrip(t *testing.T) {
	store := openTestStore(t, Bounds{HistoryWindow: 20, HealthWindow: 3})
	ctx := context.Background()
	at := time.Unix(1_700_000_000, 0)

	for i := 0; i < 5; i++ {
		o := Outcome{
			Success:         i%2 == 0,
			DurationSeconds: float64(60 + i),
			WarningCount:    i,
			PeakCPUPercent:  50.5,
			PeakMemoryBytes: 2 << 30,
			RecordedAt:      at.Add(time.Duration(i) * time.Minute),
		}
		if err := store.RecordOutcome(ctx, "demo", o); err != nil {
			t.Fatalf("RecordOutcome: %v", err)
		}
	}

	outcomes, err := store.Outcomes(ctx, "demo")
	if err != nil {
		t.Fatalf("Outcomes: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outcomes))
	}
	first := outcomes[0]
	if first.DurationSeconds != 62 || first.WarningCount != 2 || !first.Success {
		t.Errorf("unexpected first outcome: %+v", first)
	}
	if first.PeakCPUPercent != 50.5 || first.PeakMemoryBytes != 2<<30 {
		t.Errorf("peaks did not round-trip: %+v", first)
	}
	if !first.RecordedAt.Equal(at.Add(2 * time.Minute)) {
		t.Errorf("recorded_at = %v, want %v", first.RecordedAt, at.Add(2*time.Minute))
	}
}

func TestMedianDuration(t *testing.T) {
	store := openTestStore(t, DefaultBounds())
	ctx := context.Background()
	now := time.Now()

	median, err := store.MedianDuration(ctx, "target_docs_j4")
	if err != nil {
		t.Fatalf("MedianDuration: %v", err)
	}
	if median.IsSome() {
		t.Fatal("expected None for empty key")
	}

	for _, d := range []float64{100, 300, 200} {
		if err := store.RecordDuration(ctx, "target_docs_j4", d, now); err != nil {
			t.Fatalf("RecordDuration: %v", err)
		}
	}
	median, err = store.MedianDuration(ctx, "target_docs_j4")
	if err != nil {
		t.Fatalf("MedianDuration: %v", err)
	}
	if got := median.UnwrapOr(0); got != 200 {
		t.Fatalf("median = %v, want 200", got)
	}

	if err := store.RecordDuration(ctx, "target_docs_j4", 400, now); err != nil {
		t.Fatalf("RecordDuration: %v", err)
	}
	median, err = store.MedianDuration(ctx, "target_docs_j4")
	if err != nil {
		t.Fatalf("MedianDuration: %v", err)
	}
	if got := median.UnwrapOr(0); got != 250 {
		t.Fatalf("median = %v, want 250", got)
	}
}

func TestCleanupBeforeKeepsNewestRows(t *testing.T) {
	store := openTestStore(t, DefaultBounds())
	ctx := context.Background()
	old := time.Unix(1_600_000_000, 0)

	for i := 0; i < 8; i++ {
		if err := store.RecordDuration(ctx, "full_build_j4", float64(i), old.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("RecordDuration: %v", err)
		}
	}

	removed, err := store.CleanupBefore(ctx, old.Add(240*time.Hour))
	if err != nil {
		t.Fatalf("CleanupBefore: %v", err)
	}
	if removed != 3 {
		t.Fatalf("removed = %d, want 3", removed)
	}

	samples, err := store.Samples(ctx, "full_build_j4")
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(samples) != 5 {
		t.Fatalf("got %d samples, want 5", len(samples))
	}
	if samples[0].DurationSeconds != 3 {
		t.Fatalf("oldest kept = %v, want 3", samples[0].DurationSeconds)
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	store, err := Open(path, DefaultBounds())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.RecordDuration(ctx, "full_build_j4", 120, time.Now()); err != nil {
		t.Fatalf("RecordDuration: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path, DefaultBounds())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	samples, err := reopened.Samples(ctx, "full_build_j4")
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(samples) != 1 || samples[0].DurationSeconds != 120 {
		t.Fatalf("unexpected samples after reopen: %+v", samples)
	}
}

func TestWindowNeverExceedsBound(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		bound := rapid.IntRange(1, 8).Draw(t, "bound")
		count := rapid.IntRange(0, 30).Draw(t, "count")

		store, err := Open(":memory:", Bounds{HistoryWindow: bound, HealthWindow: 10})
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer store.Close()

		ctx := context.Background()
		at := time.Unix(1_700_000_000, 0)
		durations := make([]float64, count)
		for i := range durations {
			durations[i] = rapid.Float64Range(1, 10_000).Draw(t, "duration")
			if err := store.RecordDuration(ctx, "k_j1", durations[i], at.Add(time.Duration(i)*time.Second)); err != nil {
				t.Fatalf("RecordDuration: %v", err)
			}
		}

		samples, err := store.Samples(ctx, "k_j1")
		if err != nil {
			t.Fatalf("Samples: %v", err)
		}
		if len(samples) > bound {
			t.Fatalf("window holds %d samples, bound %d", len(samples), bound)
		}
		want := durations
		if len(want) > bound {
			want = want[len(want)-bound:]
		}
		if len(samples) != len(want) {
			t.Fatalf("got %d samples, want %d", len(samples), len(want))
		}
		for i := range want {
			if samples[i].DurationSeconds != want[i] {
				t.Fatalf("sample %d = %v, want %v (eviction must drop oldest first)", i, samples[i].DurationSeconds, want[i])
			}
		}
	})
}
