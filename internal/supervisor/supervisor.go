// Package supervisor owns build sessions: it spawns the planned phase
// chain, feeds classifier, sampler and predictor output into per-session
// state, and answers start, status, terminate and conflict requests
// without ever blocking a caller on a running build.
//
// Each session is driven by one supervising goroutine that applies typed
// events (output lines, resource samples, process exits) from its worker
// goroutines. Callers only read snapshots; the one exception is terminate,
// which moves a session to TERMINATED directly under the session lock.
package supervisor

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"git.home.luguber.info/inful/buildmon/internal/buildcmd"
	"git.home.luguber.info/inful/buildmon/internal/config"
	"git.home.luguber.info/inful/buildmon/internal/deps"
	"git.home.luguber.info/inful/buildmon/internal/errors"
	"git.home.luguber.info/inful/buildmon/internal/fixes"
	"git.home.luguber.info/inful/buildmon/internal/health"
	"git.home.luguber.info/inful/buildmon/internal/history"
	"git.home.luguber.info/inful/buildmon/internal/logfields"
	"git.home.luguber.info/inful/buildmon/internal/metrics"
	"git.home.luguber.info/inful/buildmon/internal/notify"
	"git.home.luguber.info/inful/buildmon/internal/observability"
	"git.home.luguber.info/inful/buildmon/internal/procscan"
	"git.home.luguber.info/inful/buildmon/internal/resource"
	"git.home.luguber.info/inful/buildmon/internal/retry"
	"git.home.luguber.info/inful/buildmon/internal/state"
)

const (
	defaultOutputLines  = 1000
	defaultPersistEvery = 50
	defaultGracePeriod  = 5 * time.Second

	// how long the supervising task keeps collecting buffered output
	// after the process has exited
	drainWait = 2 * time.Second
)

// Components are the capability interfaces a Supervisor builds on. Nil
// fields fall back to noop implementations, so tests and reduced
// deployments wire only what they need.
type Components struct {
	History   *history.Store
	Predictor history.Predictor
	Scorer    health.Scorer
	Deps      deps.Detector
	Conflicts procscan.Detector
	Matcher   *fixes.Matcher
	Recorder  metrics.Recorder
	Publisher notify.Publisher
}

// Supervisor runs and tracks build sessions for one project.
type Supervisor struct {
	cfg     *config.Config
	root    string
	project string

	// serializes the conflict check against session creation, so two
	// concurrent starts cannot both pass the one-foreground policy
	startMu sync.Mutex

	registry      *Registry
	registryStore *state.Store[map[string]Snapshot]

	history   *history.Store
	predictor history.Predictor
	scorer    health.Scorer
	deps      deps.Detector
	conflicts procscan.Detector
	matcher   *fixes.Matcher
	recorder  metrics.Recorder
	publisher notify.Publisher

	retryPolicy    retry.Policy
	thresholds     resource.Thresholds
	sampleInterval time.Duration
	maxSamples     int
	outputLimit    int
	persistEvery   int
	grace          time.Duration
}

// New builds a supervisor for the configured project and restores any
// sessions persisted by a previous run. Restored sessions that were still
// active are marked FAILED: their processes are no longer owned.
func New(ctx context.Context, cfg *config.Config, c Components) (*Supervisor, error) {
	root, err := filepath.Abs(rootOf(cfg))
	if err != nil {
		return nil, errors.InternalError("resolve project root", err)
	}

	s := &Supervisor{
		cfg:           cfg,
		root:          root,
		project:       filepath.Base(root),
		registry:      NewRegistry(),
		registryStore: newRegistryStore(cfg.Storage.DataDir),
		history:       c.History,
		predictor:     c.Predictor,
		scorer:        c.Scorer,
		deps:          c.Deps,
		conflicts:     c.Conflicts,
		matcher:       c.Matcher,
		recorder:      c.Recorder,
		publisher:     c.Publisher,

		retryPolicy:    retry.FromConfig(cfg.Build),
		thresholds:     resource.ThresholdsFromConfig(cfg.Sampler),
		sampleInterval: config.ParseDurationDefault(cfg.Sampler.Interval, resource.DefaultInterval),
		maxSamples:     cfg.Sampler.MaxSamples,
		outputLimit:    cfg.Build.OutputBufferLines,
		persistEvery:   cfg.Build.PersistEvery,
		grace:          config.ParseDurationDefault(cfg.Build.GracePeriod, defaultGracePeriod),
	}
	if s.predictor == nil {
		s.predictor = history.NoopPredictor{}
	}
	if s.scorer == nil {
		s.scorer = health.NoopScorer{}
	}
	if s.deps == nil {
		s.deps = deps.NoopDetector{}
	}
	if s.conflicts == nil {
		s.conflicts = procscan.NoopDetector{}
	}
	if s.matcher == nil {
		s.matcher = fixes.NewMatcher()
	}
	if s.recorder == nil {
		s.recorder = metrics.NoopRecorder{}
	}
	if s.publisher == nil {
		s.publisher = notify.NoopPublisher{}
	}
	if s.maxSamples <= 0 {
		s.maxSamples = resource.DefaultMaxSamples
	}
	if s.outputLimit <= 0 {
		s.outputLimit = defaultOutputLines
	}
	if s.persistEvery <= 0 {
		s.persistEvery = defaultPersistEvery
	}

	s.restore(ctx)
	return s, nil
}

func rootOf(cfg *config.Config) string {
	if cfg.Project.Root == "" {
		return "."
	}
	return cfg.Project.Root
}

// Project returns the name of the supervised project tree.
func (s *Supervisor) Project() string {
	return s.project
}

// ApplyThresholds installs new resource gating thresholds. Sessions already
// running keep the thresholds they were created with; only later starts see
// the change.
func (s *Supervisor) ApplyThresholds(th resource.Thresholds) {
	s.startMu.Lock()
	s.thresholds = th
	s.startMu.Unlock()
}

// ConflictError rejects a start because other build activity would contend
// for the same tree. No session is created.
type ConflictError struct {
	ActiveSession string              `json:"active_session,omitempty"`
	Conflicts     []procscan.Conflict `json:"conflicts,omitempty"`
}

func (e *ConflictError) Error() string {
	if e.ActiveSession != "" {
		return "another tracked build session is active: " + e.ActiveSession
	}
	return fmt.Sprintf("%d conflicting build processes detected", len(e.Conflicts))
}

// Descriptor is what start hands back: enough to poll status, plus the
// completion estimate when history supports one.
type Descriptor struct {
	BuildID      string              `json:"build_id"`
	Status       Status              `json:"status"`
	Targets      []string            `json:"targets,omitempty"`
	Background   bool                `json:"background"`
	ParallelJobs int                 `json:"parallel_jobs"`
	ETA          string              `json:"eta,omitempty"`
	Prediction   *history.Prediction `json:"prediction,omitempty"`
}

// Start plans and launches a build session. It returns before any build
// work happens; spawn failures surface through the session snapshot, not
// here. With force unset, an active non-background session or a conflicting
// external build process rejects the start without creating a session.
func (s *Supervisor) Start(ctx context.Context, req buildcmd.Request) (Descriptor, error) {
	plan, err := buildcmd.NewPlan(req, s.cfg.Project)
	if err != nil {
		return Descriptor{}, err
	}
	return s.startPlanned(ctx, req, plan)
}

func (s *Supervisor) startPlanned(ctx context.Context, req buildcmd.Request, plan buildcmd.Plan) (Descriptor, error) {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if !req.Force {
		if active, ok := s.registry.ActiveForeground(); ok {
			s.recorder.IncConflictDetected()
			return Descriptor{}, &ConflictError{ActiveSession: active.ID()}
		}
		if found, err := s.conflicts.Detect(s.registry.OwnedPIDs()); err == nil && len(found) > 0 {
			s.recorder.IncConflictDetected()
			return Descriptor{}, &ConflictError{Conflicts: found}
		}
	}

	id := newSessionID()
	ctx = observability.WithSessionID(ctx, id)
	key := history.Key(plan.SortedTargets(), plan.Parallel)
	sess := newSession(id, plan, buildcmd.Capture(s.root, req, plan), key, s.outputLimit, s.maxSamples, s.thresholds)

	if pred, err := s.predictor.Predict(ctx, key, sess.CreatedAt()); err == nil {
		sess.setPrediction(pred)
	} else {
		observability.WarnContext(ctx, "duration prediction unavailable",
			logfields.HistoryKey(key), logfields.Error(err))
	}

	s.registry.Add(sess)

	sess.mu.Lock()
	sess.transitionLocked(StatusRunning)
	if plan.Background {
		sess.transitionLocked(StatusBackground)
	}
	started := sess.status
	sess.mu.Unlock()

	mode := "foreground"
	if plan.Background {
		mode = "background"
	}
	s.recorder.IncSessionStarted(mode)
	s.recorder.SetActiveSessions(s.registry.ActiveCount())
	s.publisher.Publish(ctx, notify.Message{
		SessionID: id,
		Event:     notify.EventStarted,
		Targets:   plan.SortedTargets(),
	})
	observability.InfoContext(ctx, "session started",
		logfields.Status(string(started)),
		logfields.Targets(plan.SortedTargets()))
	s.persistRegistry(ctx, sess)

	go s.run(context.WithoutCancel(ctx), sess)

	desc := Descriptor{
		BuildID:      id,
		Status:       started,
		Targets:      plan.SortedTargets(),
		Background:   plan.Background,
		ParallelJobs: plan.Parallel,
	}
	sess.mu.Lock()
	sess.prediction.Match(func(p history.Prediction) {
		pred := p
		desc.Prediction = &pred
		desc.ETA = p.Display()
	}, func() {})
	sess.mu.Unlock()

	return desc, nil
}

// Status returns the snapshot for one session.
func (s *Supervisor) Status(id string) (Snapshot, error) {
	sess, ok := s.registry.Get(id)
	if !ok {
		return Snapshot{}, errors.SessionNotFound(id)
	}
	return sess.Snapshot(), nil
}

// Wait blocks until the session's supervising goroutine has finished, then
// returns the final snapshot. Sessions restored from a previous run are
// already settled and return immediately.
func (s *Supervisor) Wait(ctx context.Context, id string) (Snapshot, error) {
	sess, ok := s.registry.Get(id)
	if !ok {
		return Snapshot{}, errors.SessionNotFound(id)
	}
	if sess.done != nil {
		select {
		case <-sess.done:
		case <-ctx.Done():
			return sess.Snapshot(), ctx.Err()
		}
	}
	return sess.Snapshot(), nil
}

// List returns snapshots of every tracked session, oldest first.
func (s *Supervisor) List() []Snapshot {
	sessions := s.registry.All()
	out := make([]Snapshot, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Snapshot())
	}
	return out
}

// SessionLog returns the retained output lines of a session.
func (s *Supervisor) SessionLog(id string) ([]string, error) {
	sess, ok := s.registry.Get(id)
	if !ok {
		return nil, errors.SessionNotFound(id)
	}
	return sess.OutputTail(), nil
}

// ConflictReport is the result of an on-demand process scan.
type ConflictReport struct {
	Status    string              `json:"status"`
	Conflicts []procscan.Conflict `json:"conflicts,omitempty"`
}

const (
	conflictStatusClear    = "clear"
	conflictStatusDetected = "conflict_detected"
)

// Conflicts scans the live process set for build tools not owned by a
// tracked session.
func (s *Supervisor) Conflicts(ctx context.Context) (ConflictReport, error) {
	found, err := s.conflicts.Detect(s.registry.OwnedPIDs())
	if err != nil {
		return ConflictReport{}, err
	}
	report := ConflictReport{Status: conflictStatusClear, Conflicts: found}
	if len(found) > 0 {
		report.Status = conflictStatusDetected
		s.recorder.IncConflictDetected()
		observability.InfoContext(ctx, "build conflicts detected",
			logfields.Component("supervisor"))
	}
	return report, nil
}

// EvictTerminal drops terminal sessions older than the retention window
// from the registry and the persisted snapshot.
func (s *Supervisor) EvictTerminal(ctx context.Context, olderThan time.Duration) int {
	evicted := s.registry.EvictTerminalBefore(time.Now().Add(-olderThan))
	if len(evicted) == 0 {
		return 0
	}
	s.persistRegistry(ctx, nil)
	observability.InfoContext(ctx, "evicted terminal sessions",
		logfields.Component("supervisor"))
	return len(evicted)
}

// Shutdown terminates active sessions and waits, bounded by ctx, for their
// supervising goroutines to finish.
func (s *Supervisor) Shutdown(ctx context.Context) {
	for _, sess := range s.registry.All() {
		if sess.Status().Active() {
			if _, err := s.Terminate(ctx, sess.ID()); err != nil {
				observability.WarnContext(ctx, "shutdown terminate failed",
					logfields.SessionID(sess.ID()), logfields.Error(err))
			}
		}
	}
	for _, sess := range s.registry.All() {
		if sess.done == nil {
			continue
		}
		select {
		case <-sess.done:
		case <-ctx.Done():
			return
		}
	}
	s.persistRegistry(ctx, nil)
}
