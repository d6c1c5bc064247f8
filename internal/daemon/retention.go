package daemon

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/buildmon/internal/config"
	"git.home.luguber.info/inful/buildmon/internal/history"
	"git.home.luguber.info/inful/buildmon/internal/logfields"
	"git.home.luguber.info/inful/buildmon/internal/supervisor"
)

const (
	defaultSessionRetention = 24 * time.Hour
	defaultEvictionInterval = 10 * time.Minute
	defaultHistoryRetention = 30

	// quiet-hour sweep for the history database
	historyCleanupCron = "0 3 * * *"
)

// retentionJobs owns the periodic sweeps that keep the registry and the
// history database bounded: terminal sessions drop out after their TTL,
// history rows after the configured number of days.
type retentionJobs struct {
	scheduler *Scheduler

	supervisor *supervisor.Supervisor
	history    *history.Store

	sessionTTL    time.Duration
	evictInterval time.Duration
	historyDays   int
}

func newRetentionJobs(sched *Scheduler, cfg *config.Config, sup *supervisor.Supervisor, hist *history.Store) *retentionJobs {
	days := cfg.History.RetentionDays
	if days <= 0 {
		days = defaultHistoryRetention
	}
	return &retentionJobs{
		scheduler:     sched,
		supervisor:    sup,
		history:       hist,
		sessionTTL:    config.ParseDurationDefault(cfg.Storage.SessionRetention, defaultSessionRetention),
		evictInterval: config.ParseDurationDefault(cfg.Daemon.Eviction.Interval, defaultEvictionInterval),
		historyDays:   days,
	}
}

// Start registers both jobs and begins the scheduler.
func (r *retentionJobs) Start(ctx context.Context) error {
	if _, err := r.scheduler.ScheduleEvery("session-eviction", r.evictInterval, r.evictSessions); err != nil {
		return err
	}
	if r.history != nil {
		if _, err := r.scheduler.ScheduleCron("history-cleanup", historyCleanupCron, r.cleanupHistory); err != nil {
			return err
		}
	}
	r.scheduler.Start(ctx)
	slog.Info("Retention jobs scheduled",
		slog.Duration("session_ttl", r.sessionTTL),
		slog.Duration("eviction_interval", r.evictInterval),
		slog.Int("history_retention_days", r.historyDays))
	return nil
}

// Stop shuts the scheduler down.
func (r *retentionJobs) Stop(ctx context.Context) error {
	return r.scheduler.Stop(ctx)
}

func (r *retentionJobs) evictSessions() {
	n := r.supervisor.EvictTerminal(context.Background(), r.sessionTTL)
	if n > 0 {
		slog.Info("Session eviction sweep", slog.Int("evicted", n))
	}
}

func (r *retentionJobs) cleanupHistory() {
	cutoff := time.Now().AddDate(0, 0, -r.historyDays)
	deleted, err := r.history.CleanupBefore(context.Background(), cutoff)
	if err != nil {
		slog.Error("History cleanup sweep failed", logfields.Error(err))
		return
	}
	if deleted > 0 {
		slog.Info("History cleanup sweep", slog.Int64("deleted", deleted), slog.Time("cutoff", cutoff))
	}
}
