package supervisor

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/buildmon/internal/buildcmd"
	"git.home.luguber.info/inful/buildmon/internal/classify"
	"git.home.luguber.info/inful/buildmon/internal/deps"
	"git.home.luguber.info/inful/buildmon/internal/fixes"
	"git.home.luguber.info/inful/buildmon/internal/foundation"
	"git.home.luguber.info/inful/buildmon/internal/health"
	"git.home.luguber.info/inful/buildmon/internal/history"
	"git.home.luguber.info/inful/buildmon/internal/resource"
)

// Status is the lifecycle state of a build session.
type Status string

const (
	StatusPending    Status = "pending"
	StatusRunning    Status = "running"
	StatusBackground Status = "background"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusTerminated Status = "terminated"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTerminated
}

// Active reports whether the session still has a supervised process.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusRunning || s == StatusBackground
}

// transitions lists the legal lifecycle edges. Pending is only ever the
// initial state; nothing leaves a terminal state.
var transitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusRunning: true,
	},
	StatusRunning: {
		StatusBackground: true,
		StatusCompleted:  true,
		StatusFailed:     true,
		StatusTerminated: true,
	},
	StatusBackground: {
		StatusCompleted:  true,
		StatusFailed:     true,
		StatusTerminated: true,
	},
}

// ErrorRecord is a classified error line plus its fix suggestion, when one
// matched with enough confidence.
type ErrorRecord struct {
	classify.Record
	Fix *fixes.Suggestion `json:"fix,omitempty"`
}

// maxStoredErrors bounds the per-session error list. The first errors of a
// build are the root causes; later ones are usually cascade noise. The
// total count keeps growing past the bound.
const maxStoredErrors = 100

// newSessionID returns the short form used throughout logs and the API.
func newSessionID() string {
	return uuid.NewString()[:8]
}

// Session is one supervised build. All mutable fields are guarded by mu;
// they are written by the session's supervising goroutine and, on
// termination, by the Supervisor.
type Session struct {
	mu sync.Mutex

	id           string
	plan         buildcmd.Plan
	buildContext buildcmd.Context
	historyKey   string

	status  Status
	phase   buildcmd.Phase
	created time.Time
	ended   time.Time

	pid      int
	exitCode foundation.Option[int]

	output       lineRing
	totalLines   int
	droppedLines int

	errors       []ErrorRecord
	errorCount   int
	warningCount int

	usage       *resource.Usage
	prediction  foundation.Option[history.Prediction]
	healthScore foundation.Option[health.Score]
	depReport   deps.Report
	warnings    []string

	// carried over from a persisted snapshot; live sessions derive these
	// from usage and healthScore instead
	archivedUsage  string
	archivedPeak   string
	archivedHealth *int

	// closed when the supervising goroutine has finished; nil for
	// sessions restored from disk
	done chan struct{}
}

func newSession(id string, plan buildcmd.Plan, bctx buildcmd.Context, key string, outputLimit, maxSamples int, thresholds resource.Thresholds) *Session {
	return &Session{
		id:           id,
		plan:         plan,
		buildContext: bctx,
		historyKey:   key,
		status:       StatusPending,
		created:      time.Now(),
		exitCode:     foundation.None[int](),
		output:       newLineRing(outputLimit),
		usage:        resource.NewUsage(maxSamples, thresholds),
		prediction:   foundation.None[history.Prediction](),
		healthScore:  foundation.None[health.Score](),
		done:         make(chan struct{}),
	}
}

// ID returns the session id. Immutable, safe without the lock.
func (s *Session) ID() string { return s.id }

// CreatedAt returns the creation time. Immutable, safe without the lock.
func (s *Session) CreatedAt() time.Time { return s.created }

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// PID returns the pid of the currently supervised process, 0 when none.
func (s *Session) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.Active() {
		return 0
	}
	return s.pid
}

// Foreground reports whether the session counts against the one-foreground
// policy.
func (s *Session) Foreground() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.Active() && !s.plan.Background
}

// OutputTail returns a copy of the retained output lines, oldest first.
func (s *Session) OutputTail() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output.lines()
}

// transitionLocked moves the session along a legal lifecycle edge. The
// caller holds mu.
func (s *Session) transitionLocked(to Status) bool {
	if !transitions[s.status][to] {
		return false
	}
	s.status = to
	if to.Terminal() && s.ended.IsZero() {
		s.ended = time.Now()
	}
	return true
}

func (s *Session) appendWarning(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = append(s.warnings, msg)
}

func (s *Session) setHealth(score foundation.Option[health.Score]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthScore = score
}

func (s *Session) setPrediction(p foundation.Option[history.Prediction]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prediction = p
}

func (s *Session) setDependencyReport(r deps.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.depReport = r
}

func (s *Session) appendLineLocked(line string) {
	s.totalLines++
	s.output.add(line)
}

func (s *Session) appendRecordLocked(rec ErrorRecord) {
	switch rec.Type {
	case "error":
		s.errorCount++
		if len(s.errors) < maxStoredErrors {
			s.errors = append(s.errors, rec)
		}
	case "warning":
		s.warningCount++
	}
}

// lineRing keeps the last n output lines in arrival order.
type lineRing struct {
	buf   []string
	next  int
	count int
}

func newLineRing(n int) lineRing {
	if n <= 0 {
		n = 1
	}
	return lineRing{buf: make([]string, n)}
}

func (r *lineRing) add(line string) {
	r.buf[r.next] = line
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

func (r *lineRing) lines() []string {
	out := make([]string, 0, r.count)
	start := r.next - r.count
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}
