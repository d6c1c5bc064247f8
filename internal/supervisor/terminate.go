package supervisor

import (
	"context"
	stderrors "errors"
	"syscall"
	"time"

	"git.home.luguber.info/inful/buildmon/internal/errors"
	"git.home.luguber.info/inful/buildmon/internal/logfields"
	"git.home.luguber.info/inful/buildmon/internal/notify"
	"git.home.luguber.info/inful/buildmon/internal/observability"
)

// TerminateOutcome tells the caller whether the call did anything.
type TerminateOutcome string

const (
	TerminateTerminated TerminateOutcome = "terminated"
	TerminateNotRunning TerminateOutcome = "not_running"
)

// TerminateResult is the answer to a terminate request.
type TerminateResult struct {
	BuildID string           `json:"build_id"`
	Result  TerminateOutcome `json:"result"`
	Status  Status           `json:"status"`
}

// Terminate stops a session. It is idempotent: a session already in a
// terminal state answers not_running. An active session gets SIGINT on its
// process group, is marked TERMINATED immediately, and a bounded escalation
// goroutine follows up with SIGKILL after the grace period. The return
// code of a terminated session stays nil forever.
func (s *Supervisor) Terminate(ctx context.Context, id string) (TerminateResult, error) {
	sess, ok := s.registry.Get(id)
	if !ok {
		return TerminateResult{}, errors.SessionNotFound(id)
	}
	ctx = observability.WithSessionID(ctx, id)

	sess.mu.Lock()
	if sess.status.Terminal() {
		current := sess.status
		sess.mu.Unlock()
		return TerminateResult{BuildID: id, Result: TerminateNotRunning, Status: current}, nil
	}
	sess.transitionLocked(StatusTerminated)
	pid := sess.pid
	sess.mu.Unlock()

	if pid > 0 {
		signalGroup(pid, syscall.SIGINT)
		go s.escalate(context.WithoutCancel(ctx), sess, pid)
	}

	s.recorder.SetActiveSessions(s.registry.ActiveCount())
	s.publisher.Publish(ctx, notify.Message{
		SessionID: id,
		Event:     notify.EventTerminated,
		Targets:   sess.plan.SortedTargets(),
	})
	observability.InfoContext(ctx, "session terminated", logfields.PID(pid))
	s.persistRegistry(ctx, sess)

	return TerminateResult{BuildID: id, Result: TerminateTerminated, Status: StatusTerminated}, nil
}

// escalate waits out the grace period and forces the process group down if
// the supervising task has not finished by then.
func (s *Supervisor) escalate(ctx context.Context, sess *Session, pid int) {
	timer := time.NewTimer(s.grace)
	defer timer.Stop()
	select {
	case <-sess.done:
		return
	case <-timer.C:
	}

	signalGroup(pid, syscall.SIGKILL)
	time.Sleep(200 * time.Millisecond)
	if groupAlive(pid) {
		cause := stderrors.New("process group still alive after SIGKILL")
		sess.appendWarning("termination unresolved: " + cause.Error())
		observability.WarnContext(ctx, "termination unresolved",
			logfields.PID(pid),
			logfields.Error(errors.TerminationUnresolved(sess.ID(), cause)))
		s.persistRegistry(ctx, sess)
	}
}

// signalGroup signals the whole process group. ESRCH means the group is
// already gone, which counts as success.
func signalGroup(pid int, sig syscall.Signal) {
	_ = syscall.Kill(-pid, sig)
}

func groupAlive(pid int) bool {
	return syscall.Kill(-pid, 0) == nil
}
