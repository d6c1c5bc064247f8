package supervisor

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/buildmon/internal/errors"
	"git.home.luguber.info/inful/buildmon/internal/logfields"
	"git.home.luguber.info/inful/buildmon/internal/observability"
	"git.home.luguber.info/inful/buildmon/internal/state"
)

// SessionsFile is the registry snapshot inside the data directory.
const SessionsFile = "sessions.json"

const (
	registryVersion = 1
	defaultDataDir  = "./buildmon-data"
)

func newRegistryStore(dataDir string) *state.Store[map[string]Snapshot] {
	if dataDir == "" {
		dataDir = defaultDataDir
	}
	return state.NewStore[map[string]Snapshot](
		filepath.Join(dataDir, SessionsFile),
		registryVersion,
		func(doc *map[string]Snapshot) {
			if *doc == nil {
				*doc = make(map[string]Snapshot)
			}
		},
	)
}

// persistRegistry writes the registry snapshot. A failed write is retried
// per the configured policy (default: once); after that the build goes on
// and the triggering session carries a warning instead.
func (s *Supervisor) persistRegistry(ctx context.Context, trigger *Session) {
	sessions := s.registry.All()
	doc := make(map[string]Snapshot, len(sessions))
	for _, sess := range sessions {
		snap := sess.Snapshot()
		doc[snap.BuildID] = snap
	}

	err := s.registryStore.Save(doc)
	for attempt := 1; err != nil && attempt <= s.retryPolicy.MaxRetries; attempt++ {
		s.recorder.IncPersistRetry("sessions")
		time.Sleep(s.retryPolicy.Delay(attempt))
		err = s.registryStore.Save(doc)
	}
	if err == nil {
		return
	}

	s.recorder.IncPersistFailure("sessions")
	observability.WarnContext(ctx, "session registry persist failed",
		logfields.Path(s.registryStore.Path()),
		logfields.Error(errors.PersistFailed("session registry", err)))
	if trigger != nil {
		trigger.appendWarning(fmt.Sprintf("state persistence failed: %v", err))
	}
}

// restore loads the persisted registry from a previous run. Sessions that
// were still active are marked FAILED with an interrupted warning: their
// processes are no longer owned by anyone we know. An unreadable registry
// file logs a warning and starts fresh rather than refusing to run.
func (s *Supervisor) restore(ctx context.Context) {
	doc, ok, err := s.registryStore.Load()
	if err != nil {
		observability.WarnContext(ctx, "session registry unreadable, starting fresh",
			logfields.Path(s.registryStore.Path()),
			logfields.Error(err))
		return
	}
	if !ok || len(doc) == 0 {
		return
	}

	interrupted := 0
	for _, snap := range doc {
		if !snap.Status.Terminal() {
			snap.Status = StatusFailed
			snap.PID = 0
			snap.ETA = ""
			snap.ReturnCode = nil
			snap.Warnings = append(snap.Warnings,
				"interrupted: supervisor restarted while this session was active")
			interrupted++
		}
		s.registry.Add(restoredSession(snap))
	}
	observability.InfoContext(ctx, "restored persisted sessions",
		logfields.Component("supervisor"),
		logfields.Path(s.registryStore.Path()))
	if interrupted > 0 {
		s.persistRegistry(ctx, nil)
	}
}
