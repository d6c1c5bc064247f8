package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/buildmon/internal/buildcmd"
	"git.home.luguber.info/inful/buildmon/internal/config"
	berrors "git.home.luguber.info/inful/buildmon/internal/errors"
	"git.home.luguber.info/inful/buildmon/internal/supervisor"
)

// BuildCmd implements 'build': one supervised build in this process. The
// session streams its progress to the log and the final snapshot is
// printed as JSON once the build settles.
type BuildCmd struct {
	Targets    []string `arg:"" optional:"" help:"Make targets (empty plans the default target)"`
	CMake      bool     `name:"cmake" help:"Run the cmake configure phase before make"`
	CMakeOnly  bool     `name:"cmake-only" help:"Stop after the cmake configure phase"`
	Jobs       int      `short:"j" help:"Parallel make jobs (0 uses all CPUs)"`
	Background string   `help:"Backgrounding: auto, always or never" default:"auto"`
	Force      bool     `help:"Start even when another build is active"`
}

func (b *BuildCmd) Run(root *Root) error {
	cfg, _, err := loadConfig(root)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	comps, closeComponents, err := buildComponents(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer closeComponents()

	sup, err := supervisor.New(ctx, cfg, comps)
	if err != nil {
		return err
	}

	desc, err := sup.Start(ctx, buildcmd.Request{
		Targets:      b.Targets,
		CMake:        b.CMake,
		CMakeOnly:    b.CMakeOnly,
		ParallelJobs: b.Jobs,
		Background:   buildcmd.NormalizeBackgroundMode(b.Background),
		Force:        b.Force,
	})
	if err != nil {
		return err
	}

	slog.Info("Build session started",
		"build_id", desc.BuildID,
		"targets", desc.Targets,
		"parallel_jobs", desc.ParallelJobs,
		"eta", desc.ETA)

	snap, waitErr := sup.Wait(ctx, desc.BuildID)
	if waitErr != nil {
		// Interrupted. The session outlives the canceled context, so stop
		// it explicitly and wait out the termination escalation.
		slog.Info("Interrupt received, terminating build", "build_id", desc.BuildID)
		stopCtx, stopCancel := context.WithTimeout(context.Background(), stopBudget(cfg))
		defer stopCancel()
		if _, terr := sup.Terminate(stopCtx, desc.BuildID); terr != nil {
			slog.Warn("Terminate after interrupt failed", "build_id", desc.BuildID, "error", terr)
		}
		snap, _ = sup.Wait(stopCtx, desc.BuildID)
	}

	if err := printJSON(snap); err != nil {
		return err
	}

	switch snap.Status {
	case supervisor.StatusCompleted:
		return nil
	case supervisor.StatusTerminated:
		return berrors.New(berrors.CategoryTermination, berrors.SeverityError,
			fmt.Sprintf("build %s was terminated", desc.BuildID))
	default:
		return berrors.New(berrors.CategoryProcess, berrors.SeverityError,
			fmt.Sprintf("build %s failed", desc.BuildID))
	}
}

// stopBudget bounds the interrupt path: the SIGINT to SIGKILL grace chain
// plus margin for the supervising goroutine to drain and settle.
func stopBudget(cfg *config.Config) time.Duration {
	grace := config.ParseDurationDefault(cfg.Build.GracePeriod, 5*time.Second)
	return grace + 5*time.Second
}
