// Package daemon runs the long-lived supervisor service: the HTTP API,
// the config hot-reload watcher and the retention sweeps. The daemon owns
// none of the build logic; it wires a Supervisor to the outside world and
// keeps it healthy over days of uptime.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"git.home.luguber.info/inful/buildmon/internal/config"
	"git.home.luguber.info/inful/buildmon/internal/history"
	"git.home.luguber.info/inful/buildmon/internal/resource"
	"git.home.luguber.info/inful/buildmon/internal/supervisor"
	prom "github.com/prometheus/client_golang/prometheus"
)

// Status represents the current state of the daemon.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

const defaultStopTimeout = 30 * time.Second

// Options carries the pre-assembled components the daemon serves. Only the
// supervisor is required; absent components disable their feature.
type Options struct {
	// ConfigPath enables the hot-reload watcher when non-empty.
	ConfigPath string
	// Supervisor owns the build sessions the API exposes.
	Supervisor *supervisor.Supervisor
	// History enables the sample retention sweep when non-nil.
	History *history.Store
	// Registry backs the /metrics endpoint when metrics are enabled.
	Registry *prom.Registry
}

// Daemon is the long-running service wrapping one Supervisor.
type Daemon struct {
	cfg        *config.Config
	configPath string

	supervisor *supervisor.Supervisor
	history    *history.Store
	registry   *prom.Registry

	server    *apiServer
	watcher   *ConfigWatcher
	retention *retentionJobs

	status    atomic.Value // Status
	startTime time.Time
	stopChan  chan struct{}

	// serializes config reloads; appliedSampler is compared against
	// incoming configs to detect threshold changes
	reloadMu       sync.Mutex
	appliedSampler config.SamplerConfig
}

// New builds a daemon around an already-constructed supervisor.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if cfg.Daemon == nil {
		return nil, fmt.Errorf("daemon configuration is required")
	}
	if opts.Supervisor == nil {
		return nil, fmt.Errorf("supervisor is required")
	}

	d := &Daemon{
		cfg:            cfg,
		configPath:     opts.ConfigPath,
		supervisor:     opts.Supervisor,
		history:        opts.History,
		registry:       opts.Registry,
		stopChan:       make(chan struct{}),
		appliedSampler: cfg.Sampler,
	}
	d.status.Store(StatusStopped)

	d.server = newAPIServer(cfg, d)

	sched, err := NewScheduler()
	if err != nil {
		return nil, err
	}
	d.retention = newRetentionJobs(sched, cfg, opts.Supervisor, opts.History)

	if opts.ConfigPath != "" {
		watcher, err := NewConfigWatcher(opts.ConfigPath, d)
		if err != nil {
			return nil, fmt.Errorf("failed to create config watcher: %w", err)
		}
		d.watcher = watcher
	}

	return d, nil
}

// Run starts every component and blocks until ctx is canceled, then shuts
// the daemon down bounded by the configured stop timeout.
func (d *Daemon) Run(ctx context.Context) error {
	if d.GetStatus() != StatusStopped {
		return fmt.Errorf("daemon is not in stopped state: %s", d.GetStatus())
	}

	d.status.Store(StatusStarting)
	d.startTime = time.Now()

	slog.Info("Starting buildmon daemon",
		slog.String("project", d.supervisor.Project()),
		slog.Int("port", d.cfg.Daemon.HTTP.Port))

	if err := d.server.Start(ctx); err != nil {
		d.status.Store(StatusError)
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := d.retention.Start(ctx); err != nil {
		slog.Error("Failed to start retention jobs", "error", err)
	}

	if d.watcher != nil {
		if err := d.watcher.Start(ctx); err != nil {
			slog.Error("Failed to start config watcher", "error", err)
		} else {
			slog.Info("Config watcher started", slog.String("path", d.configPath))
		}
	}

	d.status.Store(StatusRunning)
	slog.Info("Daemon started")

	select {
	case <-ctx.Done():
	case <-d.stopChan:
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.stopTimeout())
	defer cancel()
	return d.Stop(stopCtx)
}

// Stop shuts the components down in reverse start order. Safe to call more
// than once; later calls are no-ops.
func (d *Daemon) Stop(ctx context.Context) error {
	current := d.GetStatus()
	if current == StatusStopped || current == StatusStopping {
		return nil
	}
	d.status.Store(StatusStopping)
	slog.Info("Stopping buildmon daemon")

	select {
	case <-d.stopChan:
	default:
		close(d.stopChan)
	}

	if d.watcher != nil {
		if err := d.watcher.Stop(ctx); err != nil {
			slog.Error("Failed to stop config watcher", "error", err)
		}
	}

	if err := d.retention.Stop(ctx); err != nil {
		slog.Error("Failed to stop retention jobs", "error", err)
	}

	// Active build sessions are terminated before the listener closes so
	// their final snapshots are still reachable through in-flight requests.
	d.supervisor.Shutdown(ctx)

	if err := d.server.Stop(ctx); err != nil {
		slog.Error("Failed to stop HTTP server", "error", err)
	}

	d.status.Store(StatusStopped)
	slog.Info("Daemon stopped", slog.Duration("uptime", time.Since(d.startTime)))
	return nil
}

// GetStatus returns the current daemon status.
func (d *Daemon) GetStatus() Status {
	status, ok := d.status.Load().(Status)
	if !ok {
		return StatusError
	}
	return status
}

// GetStartTime returns when Run was entered.
func (d *Daemon) GetStartTime() time.Time {
	return d.startTime
}

func (d *Daemon) stopTimeout() time.Duration {
	return config.ParseDurationDefault(d.cfg.Daemon.StopTimeout, defaultStopTimeout)
}

// applyDynamic folds a freshly loaded configuration into the running
// components. Only the documented dynamic subset takes effect; everything
// else keeps its boot-time value until restart.
func (d *Daemon) applyDynamic(next *config.Config) {
	d.reloadMu.Lock()
	defer d.reloadMu.Unlock()

	if next.Sampler != d.appliedSampler {
		d.supervisor.ApplyThresholds(resource.ThresholdsFromConfig(next.Sampler))
		d.appliedSampler = next.Sampler
		slog.Info("Applied sampler thresholds from config reload",
			slog.Float64("cpu_threshold", next.Sampler.CPUThreshold),
			slog.Int("memory_threshold_mb", next.Sampler.MemoryThresholdMB),
			slog.Float64("peak_cpu_threshold", next.Sampler.PeakCPUThreshold),
			slog.Int("peak_memory_mb", next.Sampler.PeakMemoryMB))
	}
	if next.Daemon != nil && next.Daemon.HTTP.Port != d.cfg.Daemon.HTTP.Port {
		slog.Warn("Ignoring daemon port change, restart required",
			slog.Int("configured", next.Daemon.HTTP.Port),
			slog.Int("active", d.cfg.Daemon.HTTP.Port))
	}
	if next.Storage.DataDir != d.cfg.Storage.DataDir {
		slog.Warn("Ignoring data directory change, restart required",
			slog.String("configured", next.Storage.DataDir),
			slog.String("active", d.cfg.Storage.DataDir))
	}
}
