package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/buildmon/internal/config"
	"git.home.luguber.info/inful/buildmon/internal/daemon"
	"git.home.luguber.info/inful/buildmon/internal/supervisor"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ServeCmd implements 'serve': the long-running daemon with its HTTP API.
type ServeCmd struct{}

func (s *ServeCmd) Run(root *Root) error {
	cfg, cfgPath, err := loadConfig(root)
	if err != nil {
		return err
	}
	if cfg.Daemon == nil {
		// A config without a daemon section still serves, on defaults.
		cfg.Daemon = &config.DaemonConfig{}
		if err := config.ApplyDefaults(cfg); err != nil {
			return err
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var reg *prom.Registry
	if cfg.Monitoring.Metrics.Enabled {
		reg = prom.NewRegistry()
	}

	comps, closeComponents, err := buildComponents(ctx, cfg, reg)
	if err != nil {
		return err
	}
	defer closeComponents()

	sup, err := supervisor.New(ctx, cfg, comps)
	if err != nil {
		return err
	}

	d, err := daemon.New(cfg, daemon.Options{
		ConfigPath: cfgPath,
		Supervisor: sup,
		History:    comps.History,
		Registry:   reg,
	})
	if err != nil {
		return err
	}

	slog.Info("Daemon starting",
		"project", sup.Project(),
		"port", cfg.Daemon.HTTP.Port,
		"data_dir", cfg.Storage.DataDir)
	return d.Run(ctx)
}
