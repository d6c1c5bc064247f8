package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/buildmon/internal/config"
	"git.home.luguber.info/inful/buildmon/internal/foundation"
)

const schemaVersion = 1

// cleanupKeep rows per key survive age-based cleanup regardless of age.
const cleanupKeep = 5

// Bounds are the rolling-window sizes enforced on insert.
type Bounds struct {
	HistoryWindow int // duration samples kept per key
	HealthWindow  int // outcomes kept per project
}

// DefaultBounds matches the configuration defaults.
func DefaultBounds() Bounds {
	return Bounds{HistoryWindow: 20, HealthWindow: 10}
}

// BoundsFromConfig builds Bounds from configuration, falling back to
// defaults for unset values.
func BoundsFromConfig(history config.HistoryConfig, health config.HealthConfig) Bounds {
	b := DefaultBounds()
	if history.WindowSize > 0 {
		b.HistoryWindow = history.WindowSize
	}
	if health.WindowSize > 0 {
		b.HealthWindow = health.WindowSize
	}
	return b
}

// Sample is one recorded build duration.
type Sample struct {
	DurationSeconds float64
	RecordedAt      time.Time
}

// Outcome is one recorded build result used for health scoring.
type Outcome struct {
	Success         bool
	DurationSeconds float64
	WarningCount    int
	PeakCPUPercent  float64
	PeakMemoryBytes uint64
	RecordedAt      time.Time
}

// Store persists duration samples and health outcomes in SQLite.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	bounds Bounds
}

// Open opens (or creates) the store at path. Use ":memory:" for an
// in-memory database in tests.
func Open(path string, bounds Bounds) (*Store, error) {
	def := DefaultBounds()
	if bounds.HistoryWindow <= 0 {
		bounds.HistoryWindow = def.HistoryWindow
	}
	if bounds.HealthWindow <= 0 {
		bounds.HealthWindow = def.HealthWindow
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A :memory: database lives on a single connection; keep the pool at one.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, bounds: bounds}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS history_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		key TEXT NOT NULL,
		duration_seconds REAL NOT NULL,
		recorded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_key ON history_samples(key);
	CREATE TABLE IF NOT EXISTS health_outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project TEXT NOT NULL,
		success INTEGER NOT NULL,
		duration_seconds REAL NOT NULL,
		warning_count INTEGER NOT NULL,
		peak_cpu REAL NOT NULL,
		peak_memory_bytes INTEGER NOT NULL,
		recorded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_health_project ON health_outcomes(project);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	var version int
	err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion)
		return err
	case err != nil:
		return err
	case version != schemaVersion:
		return fmt.Errorf("unsupported schema version %d (want %d)", version, schemaVersion)
	}
	return nil
}

// RecordDuration appends one observed duration for key and evicts the oldest
// rows beyond the window bound.
func (s *Store) RecordDuration(ctx context.Context, key string, seconds float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO history_samples (key, duration_seconds, recorded_at) VALUES (?, ?, ?)",
		key, seconds, at.Unix(),
	); err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM history_samples WHERE key = ? AND id NOT IN (
			SELECT id FROM history_samples WHERE key = ? ORDER BY id DESC LIMIT ?
		)`,
		key, key, s.bounds.HistoryWindow,
	); err != nil {
		return fmt.Errorf("evict samples: %w", err)
	}
	return nil
}

// Samples returns the retained durations for key, oldest first.
func (s *Store) Samples(ctx context.Context, key string) ([]Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT duration_seconds, recorded_at FROM history_samples WHERE key = ? ORDER BY id",
		key,
	)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var sm Sample
		var unix int64
		if err := rows.Scan(&sm.DurationSeconds, &unix); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		sm.RecordedAt = time.Unix(unix, 0)
		samples = append(samples, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return samples, nil
}

// MedianDuration returns the median retained duration for key, or None when
// the key has no samples.
func (s *Store) MedianDuration(ctx context.Context, key string) (foundation.Option[float64], error) {
	samples, err := s.Samples(ctx, key)
	if err != nil {
		return foundation.None[float64](), err
	}
	if len(samples) == 0 {
		return foundation.None[float64](), nil
	}

	durations := make([]float64, len(samples))
	for i, sm := range samples {
		durations[i] = sm.DurationSeconds
	}
	sort.Float64s(durations)

	mid := len(durations) / 2
	if len(durations)%2 == 1 {
		return foundation.Some(durations[mid]), nil
	}
	return foundation.Some((durations[mid-1] + durations[mid]) / 2), nil
}

// RecordOutcome appends one build outcome for project and evicts the oldest
// rows beyond the window bound.
func (s *Store) RecordOutcome(ctx context.Context, project string, o Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	success := 0
	if o.Success {
		success = 1
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO health_outcomes
		 (project, success, duration_seconds, warning_count, peak_cpu, peak_memory_bytes, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		project, success, o.DurationSeconds, o.WarningCount, o.PeakCPUPercent, int64(o.PeakMemoryBytes), o.RecordedAt.Unix(),
	); err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM health_outcomes WHERE project = ? AND id NOT IN (
			SELECT id FROM health_outcomes WHERE project = ? ORDER BY id DESC LIMIT ?
		)`,
		project, project, s.bounds.HealthWindow,
	); err != nil {
		return fmt.Errorf("evict outcomes: %w", err)
	}
	return nil
}

// Outcomes returns the retained outcomes for project, oldest first.
func (s *Store) Outcomes(ctx context.Context, project string) ([]Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT success, duration_seconds, warning_count, peak_cpu, peak_memory_bytes, recorded_at
		 FROM health_outcomes WHERE project = ? ORDER BY id`,
		project,
	)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var o Outcome
		var success int
		var peakMemory, unix int64
		if err := rows.Scan(&success, &o.DurationSeconds, &o.WarningCount, &o.PeakCPUPercent, &peakMemory, &unix); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Success = success != 0
		o.PeakMemoryBytes = uint64(peakMemory)
		o.RecordedAt = time.Unix(unix, 0)
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return outcomes, nil
}

// CleanupBefore deletes rows recorded before cutoff from both tables, always
// keeping the newest rows per key or project. Returns the number of rows
// removed.
func (s *Store) CleanupBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for _, stmt := range []struct{ query, table string }{
		{
			query: `DELETE FROM history_samples WHERE recorded_at < ? AND id NOT IN (
				SELECT id FROM history_samples h WHERE h.key = history_samples.key
				ORDER BY h.id DESC LIMIT ?
			)`,
			table: "history_samples",
		},
		{
			query: `DELETE FROM health_outcomes WHERE recorded_at < ? AND id NOT IN (
				SELECT id FROM health_outcomes h WHERE h.project = health_outcomes.project
				ORDER BY h.id DESC LIMIT ?
			)`,
			table: "health_outcomes",
		},
	} {
		res, err := s.db.ExecContext(ctx, stmt.query, cutoff.Unix(), cleanupKeep)
		if err != nil {
			return removed, fmt.Errorf("cleanup %s: %w", stmt.table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return removed, fmt.Errorf("cleanup %s: %w", stmt.table, err)
		}
		removed += n
	}
	return removed, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
