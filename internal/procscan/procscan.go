// Package procscan wraps gopsutil process enumeration for the two consumers
// that need it: the conflict detector (who else is compiling right now) and
// the resource sampler (what is this session's process tree using).
package procscan

import (
	"time"

	"git.home.luguber.info/inful/buildmon/internal/util/sets"
	"github.com/shirou/gopsutil/v3/process"
)

// Entry is one row of a process-table snapshot.
type Entry struct {
	PID       int32
	PPID      int32
	Name      string
	Cmdline   string
	StartedAt time.Time
}

// Scanner produces a point-in-time snapshot of the process table.
type Scanner interface {
	Snapshot() ([]Entry, error)
}

// SystemScanner reads the live process table.
type SystemScanner struct{}

// Snapshot enumerates all visible processes. Rows that disappear or deny
// access mid-read are skipped, not errors.
func (SystemScanner) Snapshot() ([]Entry, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(procs))
	for _, p := range procs {
		name, err := p.Name()
		if err != nil || name == "" {
			continue
		}
		entry := Entry{PID: p.Pid, Name: name}
		if ppid, err := p.Ppid(); err == nil {
			entry.PPID = ppid
		}
		if cmdline, err := p.Cmdline(); err == nil {
			entry.Cmdline = cmdline
		}
		if createdMS, err := p.CreateTime(); err == nil {
			entry.StartedAt = time.UnixMilli(createdMS)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// descendants expands the given root pids into the full set of pids reachable
// through parent links in the snapshot, roots included.
func descendants(entries []Entry, roots []int32) sets.Set[int32] {
	children := make(map[int32][]int32, len(entries))
	for _, e := range entries {
		children[e.PPID] = append(children[e.PPID], e.PID)
	}
	owned := make(sets.Set[int32], len(roots))
	queue := append([]int32(nil), roots...)
	for len(queue) > 0 {
		pid := queue[0]
		queue = queue[1:]
		if owned.Has(pid) {
			continue
		}
		owned.Add(pid)
		queue = append(queue, children[pid]...)
	}
	return owned
}
