package procscan

import (
	"github.com/shirou/gopsutil/v3/process"

	"git.home.luguber.info/inful/buildmon/internal/errors"
	"git.home.luguber.info/inful/buildmon/internal/util/sets"
)

// TreeSample is one measurement of a process tree: summed CPU percent and
// resident memory across the root and all live descendants.
type TreeSample struct {
	CPUPercent float64
	RSSBytes   uint64
	Processes  int
}

// TreeSampler measures a session's process tree once per tick.
type TreeSampler interface {
	Sample() (TreeSample, error)
}

// Tree measures the live process tree rooted at one pid. Handles are
// retained between samples so CPU percentages are computed tick-to-tick
// rather than since process start.
type Tree struct {
	root    int32
	handles map[int32]*process.Process
}

// NewTree tracks the tree rooted at pid.
func NewTree(pid int32) *Tree {
	return &Tree{root: pid, handles: make(map[int32]*process.Process)}
}

// Sample walks the current tree and sums CPU and RSS. Children may appear
// or exit between calls; rows that vanish mid-walk are skipped. An error is
// returned only when the root itself is gone.
func (t *Tree) Sample() (TreeSample, error) {
	rootProc, err := process.NewProcess(t.root)
	if err != nil {
		return TreeSample{}, errors.ProcessScanError(err)
	}

	pids := []int32{t.root}
	collectChildren(rootProc, &pids)

	live := make(sets.Set[int32], len(pids))
	var sample TreeSample
	for _, pid := range pids {
		live.Add(pid)
		handle, ok := t.handles[pid]
		if !ok {
			handle, err = process.NewProcess(pid)
			if err != nil {
				continue
			}
			t.handles[pid] = handle
		}
		if cpu, err := handle.Percent(0); err == nil {
			sample.CPUPercent += cpu
		}
		if mem, err := handle.MemoryInfo(); err == nil && mem != nil {
			sample.RSSBytes += mem.RSS
		}
		sample.Processes++
	}

	for pid := range t.handles {
		if !live.Has(pid) {
			delete(t.handles, pid)
		}
	}
	return sample, nil
}

// collectChildren appends all live descendants of p to pids.
func collectChildren(p *process.Process, pids *[]int32) {
	children, err := p.Children()
	if err != nil {
		return
	}
	for _, child := range children {
		*pids = append(*pids, child.Pid)
		collectChildren(child, pids)
	}
}
