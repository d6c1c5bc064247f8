package procscan

import (
	"os"
	"strconv"
	"strings"
	"time"

	"git.home.luguber.info/inful/buildmon/internal/errors"
	"git.home.luguber.info/inful/buildmon/internal/util/sets"
)

// Conflict is a build process running outside this supervisor's sessions.
type Conflict struct {
	PID     int32  `json:"pid"`
	Name    string `json:"name"`
	Cmdline string `json:"cmdline"`
	Elapsed string `json:"elapsed"`
}

// Detector finds build processes this supervisor does not own.
type Detector interface {
	// Detect scans for conflicting build processes. owned lists the root
	// pids of tracked sessions; their whole process trees are excluded.
	Detect(owned []int32) ([]Conflict, error)
}

// buildProcessNames are the tool names that mark a process as build work.
var buildProcessNames = sets.New(
	"make", "gcc", "g++", "clang", "clang++",
	"ld", "ar", "ranlib", "cmake", "ninja",
	"cc", "c++", "collect2", "as",
)

// ambiguousNames collide with non-build tools, so a name match alone is not
// enough; the command line must also look build-related.
var ambiguousNames = sets.New("cc", "c++", "ld", "ar", "as")

var buildCmdlineHints = []string{"cmake", "build", "make"}

const cmdlineDisplayLimit = 100

// ScanDetector implements Detector over a process-table Scanner.
type ScanDetector struct {
	scanner Scanner
	now     func() time.Time
	selfPID int32
	ppid    int32
}

// NewDetector builds a detector over the given scanner. The calling process
// and its parent are always excluded from results.
func NewDetector(scanner Scanner) *ScanDetector {
	return &ScanDetector{
		scanner: scanner,
		now:     time.Now,
		selfPID: int32(os.Getpid()),
		ppid:    int32(os.Getppid()),
	}
}

// Detect scans the process table for build tools outside the owned trees.
func (d *ScanDetector) Detect(owned []int32) ([]Conflict, error) {
	entries, err := d.scanner.Snapshot()
	if err != nil {
		return nil, errors.ProcessScanError(err)
	}

	excluded := descendants(entries, owned)
	excluded.Add(d.selfPID)
	excluded.Add(d.ppid)

	now := d.now()
	var conflicts []Conflict
	for _, e := range entries {
		if excluded.Has(e.PID) {
			continue
		}
		name := strings.ToLower(e.Name)
		if !buildProcessNames.Has(name) {
			continue
		}
		if ambiguousNames.Has(name) && !looksLikeBuildCmdline(e.Cmdline) {
			continue
		}
		conflicts = append(conflicts, Conflict{
			PID:     e.PID,
			Name:    e.Name,
			Cmdline: truncateCmdline(e.Cmdline),
			Elapsed: elapsedSince(e.StartedAt, now),
		})
	}
	return conflicts, nil
}

func looksLikeBuildCmdline(cmdline string) bool {
	lower := strings.ToLower(cmdline)
	for _, hint := range buildCmdlineHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

func truncateCmdline(cmdline string) string {
	if len(cmdline) > cmdlineDisplayLimit {
		return cmdline[:cmdlineDisplayLimit] + "..."
	}
	return cmdline
}

func elapsedSince(start time.Time, now time.Time) string {
	if start.IsZero() || now.Before(start) {
		return "0s"
	}
	return strconv.Itoa(int(now.Sub(start).Seconds())) + "s"
}

// NoopDetector reports no conflicts. Used when conflict checking is
// disabled and in tests.
type NoopDetector struct{}

func (NoopDetector) Detect([]int32) ([]Conflict, error) { return nil, nil }
