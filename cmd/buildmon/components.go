package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/buildmon/internal/config"
	"git.home.luguber.info/inful/buildmon/internal/deps"
	berrors "git.home.luguber.info/inful/buildmon/internal/errors"
	"git.home.luguber.info/inful/buildmon/internal/fixes"
	"git.home.luguber.info/inful/buildmon/internal/health"
	"git.home.luguber.info/inful/buildmon/internal/history"
	"git.home.luguber.info/inful/buildmon/internal/metrics"
	"git.home.luguber.info/inful/buildmon/internal/notify"
	"git.home.luguber.info/inful/buildmon/internal/procscan"
	"git.home.luguber.info/inful/buildmon/internal/state"
	"git.home.luguber.info/inful/buildmon/internal/supervisor"
	prom "github.com/prometheus/client_golang/prometheus"
)

// buildComponents assembles the supervisor's capability set from the
// configuration. An unreachable history database disables prediction and
// health scoring instead of failing the command; only an unusable data
// directory is fatal. The returned cleanup closes whatever was opened, in
// reverse order.
func buildComponents(ctx context.Context, cfg *config.Config, reg *prom.Registry) (supervisor.Components, func(), error) {
	var comps supervisor.Components
	var closers []func()

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return comps, nil, berrors.StorageError("create data directory", err)
	}

	dbPath := filepath.Join(cfg.Storage.DataDir, cfg.Storage.DatabaseFile)
	store, err := history.Open(dbPath, history.BoundsFromConfig(cfg.History, cfg.Health))
	if err != nil {
		slog.Warn("History store unavailable, predictions and health scoring disabled",
			"path", dbPath, "error", err)
	} else {
		comps.History = store
		comps.Predictor = history.NewPredictor(store, history.TuningFromConfig(cfg.History))
		comps.Scorer = health.NewScorer(store, health.LimitsFromConfig(cfg.Health))
		closers = append(closers, func() { _ = store.Close() })
	}

	root, err := filepath.Abs(projectRoot(cfg))
	if err != nil {
		cleanup(closers)
		return comps, nil, berrors.InternalError("resolve project root", err)
	}
	depStore := state.NewDependencyStore(cfg.Storage.DataDir)
	comps.Deps = deps.NewTracker(root, cfg.Dependencies, depStore.ForRoot(root))
	comps.Conflicts = procscan.NewDetector(procscan.SystemScanner{})
	comps.Matcher = fixes.NewMatcher()

	publisher := notify.Connect(ctx, cfg.Notify)
	comps.Publisher = publisher
	closers = append(closers, publisher.Close)

	if reg != nil {
		comps.Recorder = metrics.NewPrometheusRecorder(reg)
	}

	return comps, func() { cleanup(closers) }, nil
}

func cleanup(closers []func()) {
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

func projectRoot(cfg *config.Config) string {
	if cfg.Project.Root == "" {
		return "."
	}
	return cfg.Project.Root
}
