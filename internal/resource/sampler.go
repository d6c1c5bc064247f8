// Package resource samples a session's process tree at a fixed interval
// and aggregates the readings into the compact usage summaries surfaced on
// snapshots. Sampling runs in its own goroutine; aggregation belongs to the
// supervising task, so Usage is not locked.
package resource

import (
	"context"
	"time"

	"git.home.luguber.info/inful/buildmon/internal/procscan"
)

// DefaultInterval between samples.
const DefaultInterval = 2500 * time.Millisecond

// Sample is one tick of process-tree usage.
type Sample struct {
	At          time.Time
	CPUPercent  float64
	MemoryBytes uint64
	Processes   int
}

// Sampler runs one session's sampling loop against its process tree.
type Sampler struct {
	tree     procscan.TreeSampler
	interval time.Duration
}

// NewSampler builds a sampler over the given tree. Non-positive intervals
// fall back to DefaultInterval.
func NewSampler(tree procscan.TreeSampler, interval time.Duration) *Sampler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sampler{tree: tree, interval: interval}
}

// Run emits one sample per tick until ctx is canceled. Ticks with an
// unreadable tree are skipped; the loop never stops on its own.
func (s *Sampler) Run(ctx context.Context, emit func(Sample)) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			measured, err := s.tree.Sample()
			if err != nil {
				continue
			}
			emit(Sample{
				At:          time.Now(),
				CPUPercent:  measured.CPUPercent,
				MemoryBytes: measured.RSSBytes,
				Processes:   measured.Processes,
			})
		}
	}
}
