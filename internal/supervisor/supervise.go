package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"git.home.luguber.info/inful/buildmon/internal/buildcmd"
	"git.home.luguber.info/inful/buildmon/internal/classify"
	berrors "git.home.luguber.info/inful/buildmon/internal/errors"
	"git.home.luguber.info/inful/buildmon/internal/fixes"
	"git.home.luguber.info/inful/buildmon/internal/foundation"
	"git.home.luguber.info/inful/buildmon/internal/history"
	"git.home.luguber.info/inful/buildmon/internal/logfields"
	"git.home.luguber.info/inful/buildmon/internal/metrics"
	"git.home.luguber.info/inful/buildmon/internal/notify"
	"git.home.luguber.info/inful/buildmon/internal/observability"
	"git.home.luguber.info/inful/buildmon/internal/procscan"
	"git.home.luguber.info/inful/buildmon/internal/resource"
)

// phaseEvent is one unit of work delivered to the supervising task. Session
// state only changes when that task applies an event, or when Terminate
// moves the session to TERMINATED.
type phaseEvent interface{ phaseEvent() }

type lineEvent struct {
	line   string
	record *classify.Record
}

type sampleEvent struct {
	sample resource.Sample
}

type exitedEvent struct {
	code int
}

type readerDoneEvent struct {
	dropped int
}

func (lineEvent) phaseEvent()       {}
func (sampleEvent) phaseEvent()     {}
func (exitedEvent) phaseEvent()     {}
func (readerDoneEvent) phaseEvent() {}

// run is the supervising task: it owns the phase chain of one session from
// first spawn to the completion bookkeeping.
func (s *Supervisor) run(ctx context.Context, sess *Session) {
	defer close(sess.done)

	ctx = observability.WithHistoryKey(ctx, sess.historyKey)
	s.scanDependencies(ctx, sess)

	phasesOK := true
	lastCode := 0
	codeKnown := false
	for _, cmd := range sess.plan.Commands {
		if sess.Status().Terminal() {
			phasesOK = false
			break
		}
		code, ran, ok := s.runPhase(ctx, sess, cmd)
		if ran {
			lastCode = code
			codeKnown = true
		}
		if !ok {
			phasesOK = false
			break
		}
	}
	s.finish(ctx, sess, lastCode, codeKnown, phasesOK)
}

// scanDependencies records what changed since the previous build. A failed
// scan degrades the dependency fields, nothing else.
func (s *Supervisor) scanDependencies(ctx context.Context, sess *Session) {
	report, err := s.deps.Detect(ctx)
	if err != nil {
		observability.WarnContext(ctx, "dependency scan failed",
			logfields.Component("supervisor"), logfields.Error(err))
		return
	}
	sess.setDependencyReport(report)
}

// runPhase spawns one planned command and applies its events until exit
// plus a bounded output drain. ran is false when the process never
// started; ok is false when the phase did not succeed or the session was
// terminated while it ran.
func (s *Supervisor) runPhase(ctx context.Context, sess *Session, cmd buildcmd.Command) (code int, ran, ok bool) {
	ctx = observability.WithPhase(ctx, string(cmd.Phase))

	sess.mu.Lock()
	sess.phase = cmd.Phase
	sess.mu.Unlock()
	s.persistRegistry(ctx, sess)

	if cmd.Phase == buildcmd.PhaseConfigure {
		if err := buildcmd.EnsureBuildDir(cmd.Dir); err != nil {
			s.failSpawn(ctx, sess, cmd, err)
			return 0, false, false
		}
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		s.failSpawn(ctx, sess, cmd, err)
		return 0, false, false
	}

	proc := exec.Command(cmd.Argv[0], cmd.Argv[1:]...)
	proc.Dir = cmd.Dir
	proc.Stdout = pw
	proc.Stderr = pw
	// own process group, so terminate can signal the whole build tree
	proc.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	started := time.Now()
	if err := proc.Start(); err != nil {
		pw.Close()
		pr.Close()
		s.failSpawn(ctx, sess, cmd, err)
		return 0, false, false
	}
	pw.Close()

	pid := proc.Process.Pid
	sess.mu.Lock()
	sess.pid = pid
	terminatedDuringSpawn := sess.status == StatusTerminated
	sess.mu.Unlock()
	if terminatedDuringSpawn {
		// terminate raced the spawn and found no pid to signal
		signalGroup(pid, syscall.SIGINT)
		go s.escalate(ctx, sess, pid)
	}
	observability.InfoContext(ctx, "phase started",
		logfields.PID(pid), logfields.Targets(sess.plan.SortedTargets()))

	events := make(chan phaseEvent, 128)
	// the classifier may deliver through the drain window; the sampler
	// stops as soon as the process exits
	drainCtx, stopDrain := context.WithCancel(context.Background())
	defer stopDrain()
	phaseCtx, stopPhase := context.WithCancel(drainCtx)
	defer stopPhase()

	go func() {
		err := proc.Wait()
		events <- exitedEvent{code: exitCodeOf(err)}
	}()
	go s.readOutput(drainCtx, pr, events)
	go s.sampleTree(phaseCtx, pid, events)

	exitCode := 0
	readerDone := false
	linesSincePersist := 0
	for exited := false; !exited; {
		switch e := (<-events).(type) {
		case lineEvent:
			s.applyLine(ctx, sess, e)
			linesSincePersist++
			if linesSincePersist >= s.persistEvery {
				linesSincePersist = 0
				s.persistRegistry(ctx, sess)
			}
		case sampleEvent:
			sess.mu.Lock()
			sess.usage.Add(e.sample)
			sess.mu.Unlock()
			observability.DebugContext(ctx, "resource sample",
				slog.Float64("cpu_percent", e.sample.CPUPercent),
				slog.Uint64("memory_bytes", e.sample.MemoryBytes),
				slog.Int("processes", e.sample.Processes))
		case readerDoneEvent:
			readerDone = true
			sess.mu.Lock()
			sess.droppedLines += e.dropped
			sess.mu.Unlock()
		case exitedEvent:
			exitCode = e.code
			exited = true
		}
	}
	stopPhase()

	s.drainOutput(ctx, sess, events, readerDone)
	stopDrain()
	pr.Close()

	success := buildcmd.PhaseSucceeded(cmd.Phase, exitCode, cmd.Dir)
	elapsed := time.Since(started)
	s.recorder.ObservePhaseDuration(string(cmd.Phase), elapsed)
	terminated := sess.Status() == StatusTerminated
	s.recorder.IncPhaseResult(string(cmd.Phase), phaseResult(success, terminated))
	observability.InfoContext(ctx, "phase finished",
		logfields.ExitCode(exitCode),
		logfields.DurationMS(float64(elapsed.Milliseconds())))

	if terminated || !success {
		return exitCode, true, false
	}
	return exitCode, true, true
}

// drainOutput keeps collecting classifier events after process exit so
// late buffered errors are not lost. The wait is bounded: a child that
// inherited the pipe and never exits cannot wedge the supervising task.
func (s *Supervisor) drainOutput(ctx context.Context, sess *Session, events <-chan phaseEvent, readerDone bool) {
	if readerDone {
		return
	}
	timer := time.NewTimer(drainWait)
	defer timer.Stop()
	for {
		select {
		case ev := <-events:
			switch e := ev.(type) {
			case lineEvent:
				s.applyLine(ctx, sess, e)
			case readerDoneEvent:
				sess.mu.Lock()
				sess.droppedLines += e.dropped
				sess.mu.Unlock()
				return
			case sampleEvent:
				// sampler already stopping
			}
		case <-timer.C:
			return
		}
	}
}

// applyLine records one output line and, when classified, its error record
// and fix suggestion.
func (s *Supervisor) applyLine(ctx context.Context, sess *Session, e lineEvent) {
	var rec *ErrorRecord
	if e.record != nil {
		r := ErrorRecord{Record: *e.record}
		if e.record.Type == "error" {
			s.matcher.Match(*e.record).Match(func(fix fixes.Suggestion) {
				suggestion := fix
				r.Fix = &suggestion
				s.recorder.IncFixSuggested(fix.Pattern)
			}, func() {})
		}
		rec = &r
		s.recorder.IncLineClassified(string(e.record.Severity))
	}

	sess.mu.Lock()
	sess.appendLineLocked(e.line)
	if rec != nil {
		sess.appendRecordLocked(*rec)
	}
	sess.mu.Unlock()
}

// readOutput classifies the merged output pipe until it closes, then
// reports the dropped-line count.
func (s *Supervisor) readOutput(ctx context.Context, r io.Reader, events chan<- phaseEvent) {
	stream := classify.NewStream(r)
	stream.Run(func(ev classify.Event) {
		select {
		case events <- lineEvent{line: ev.Line, record: ev.Record}:
		case <-ctx.Done():
		}
	})
	select {
	case events <- readerDoneEvent{dropped: stream.Dropped()}:
	case <-ctx.Done():
	}
}

// sampleTree feeds resource samples for the process tree rooted at pid.
func (s *Supervisor) sampleTree(ctx context.Context, pid int, events chan<- phaseEvent) {
	sampler := resource.NewSampler(procscan.NewTree(int32(pid)), s.sampleInterval)
	sampler.Run(ctx, func(sample resource.Sample) {
		select {
		case events <- sampleEvent{sample: sample}:
		case <-ctx.Done():
		}
	})
}

// failSpawn marks the session FAILED because a phase process could not be
// created. There is no exit code to record.
func (s *Supervisor) failSpawn(ctx context.Context, sess *Session, cmd buildcmd.Command, cause error) {
	err := berrors.SpawnFailed(strings.Join(cmd.Argv, " "), cause)
	sess.mu.Lock()
	sess.transitionLocked(StatusFailed)
	sess.warnings = append(sess.warnings, fmt.Sprintf("spawn failed: %v", cause))
	sess.mu.Unlock()
	observability.ErrorContext(ctx, "phase spawn failed",
		logfields.Phase(string(cmd.Phase)), logfields.Error(err))
}

// finish settles the terminal state and runs the completion bookkeeping:
// history, health, metrics, notification and the final registry write.
func (s *Supervisor) finish(ctx context.Context, sess *Session, lastCode int, codeKnown, phasesOK bool) {
	sess.mu.Lock()
	if !sess.status.Terminal() {
		if phasesOK {
			sess.transitionLocked(StatusCompleted)
		} else {
			sess.transitionLocked(StatusFailed)
		}
	}
	// a terminated session keeps a nil return code forever
	if sess.status != StatusTerminated && codeKnown {
		sess.exitCode = foundation.Some(lastCode)
	}
	if sess.ended.IsZero() {
		sess.ended = time.Now()
	}
	status := sess.status
	duration := sess.ended.Sub(sess.created)
	endedAt := sess.ended
	warnCount := sess.warningCount
	peakCPU := sess.usage.PeakCPU()
	peakMem := sess.usage.PeakMemoryBytes()
	returnCode := sess.exitCode.ToPointer()
	sess.mu.Unlock()

	s.recordOutcome(ctx, sess, status, duration, endedAt, warnCount, peakCPU, peakMem)

	s.recorder.ObserveSessionDuration(duration)
	s.recorder.IncSessionOutcome(outcomeLabel(status))
	s.recorder.SetActiveSessions(s.registry.ActiveCount())

	// the terminated event was already published by Terminate
	if status != StatusTerminated {
		s.publisher.Publish(ctx, notify.Message{
			SessionID:  sess.ID(),
			Event:      lifecycleEvent(status),
			Targets:    sess.plan.SortedTargets(),
			ReturnCode: returnCode,
		})
	}
	observability.InfoContext(ctx, "session finished",
		logfields.Status(string(status)),
		logfields.DurationMS(float64(duration.Milliseconds())))
	s.persistRegistry(ctx, sess)
}

// recordOutcome feeds history and health. Durations enter the prediction
// window only for completed builds; failed durations would poison the eta.
// Terminated sessions leave no trace in either store.
func (s *Supervisor) recordOutcome(ctx context.Context, sess *Session, status Status, duration time.Duration, endedAt time.Time, warnCount int, peakCPU float64, peakMem uint64) {
	if status == StatusTerminated {
		return
	}
	if s.history != nil {
		if status == StatusCompleted {
			if err := s.history.RecordDuration(ctx, sess.historyKey, duration.Seconds(), endedAt); err != nil {
				observability.WarnContext(ctx, "history append failed",
					logfields.HistoryKey(sess.historyKey), logfields.Error(err))
			}
		}
		err := s.history.RecordOutcome(ctx, s.project, history.Outcome{
			Success:         status == StatusCompleted,
			DurationSeconds: duration.Seconds(),
			WarningCount:    warnCount,
			PeakCPUPercent:  peakCPU,
			PeakMemoryBytes: peakMem,
			RecordedAt:      endedAt,
		})
		if err != nil {
			observability.WarnContext(ctx, "health outcome append failed",
				logfields.Error(err))
		}
	}
	score, err := s.scorer.Score(ctx, s.project, sess.historyKey)
	if err != nil {
		observability.WarnContext(ctx, "health score unavailable",
			logfields.Error(err))
		return
	}
	sess.setHealth(score)
}

func exitCodeOf(waitErr error) int {
	if waitErr == nil {
		return 0
	}
	var exit *exec.ExitError
	if errors.As(waitErr, &exit) {
		return exit.ExitCode()
	}
	return -1
}

func phaseResult(success, terminated bool) metrics.ResultLabel {
	switch {
	case terminated:
		return metrics.ResultCanceled
	case success:
		return metrics.ResultSuccess
	default:
		return metrics.ResultFatal
	}
}

func outcomeLabel(status Status) metrics.OutcomeLabel {
	switch status {
	case StatusCompleted:
		return metrics.OutcomeCompleted
	case StatusTerminated:
		return metrics.OutcomeTerminated
	default:
		return metrics.OutcomeFailed
	}
}

func lifecycleEvent(status Status) notify.Event {
	switch status {
	case StatusCompleted:
		return notify.EventCompleted
	case StatusTerminated:
		return notify.EventTerminated
	default:
		return notify.EventFailed
	}
}
