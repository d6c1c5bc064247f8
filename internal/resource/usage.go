package resource

import (
	"git.home.luguber.info/inful/buildmon/internal/config"
)

// DefaultMaxSamples bounds the per-session sample window.
const DefaultMaxSamples = 100

// Thresholds gate when usage and peak fields appear on a snapshot. All
// comparisons are strictly greater than, so landing exactly on a threshold
// keeps the field out.
type Thresholds struct {
	SummaryCPUPercent float64
	SummaryMemoryMB   float64
	PeakCPUPercent    float64
	PeakMemoryMB      float64
	PeakDeltaPercent  float64
}

// DefaultThresholds match the documented gating: summary above 50%/500MB,
// peak above 80%/1GB when more than 20% over the average.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SummaryCPUPercent: 50,
		SummaryMemoryMB:   500,
		PeakCPUPercent:    80,
		PeakMemoryMB:      1024,
		PeakDeltaPercent:  20,
	}
}

// ThresholdsFromConfig maps sampler configuration onto gating thresholds,
// falling back to defaults for unset values.
func ThresholdsFromConfig(cfg config.SamplerConfig) Thresholds {
	th := DefaultThresholds()
	if cfg.CPUThreshold > 0 {
		th.SummaryCPUPercent = cfg.CPUThreshold
	}
	if cfg.MemoryThresholdMB > 0 {
		th.SummaryMemoryMB = float64(cfg.MemoryThresholdMB)
	}
	if cfg.PeakCPUThreshold > 0 {
		th.PeakCPUPercent = cfg.PeakCPUThreshold
	}
	if cfg.PeakMemoryMB > 0 {
		th.PeakMemoryMB = float64(cfg.PeakMemoryMB)
	}
	if cfg.PeakDeltaPercent > 0 {
		th.PeakDeltaPercent = cfg.PeakDeltaPercent
	}
	return th
}

// Usage aggregates one session's samples: a bounded window for averages and
// running peaks over everything ever observed. Owned by the supervising
// task; not safe for concurrent use.
type Usage struct {
	thresholds Thresholds
	maxSamples int

	window     []Sample
	sumCPU     float64
	sumMemory  float64
	peakCPU    float64
	peakMemory uint64
	totalAdded int
}

// NewUsage builds an empty aggregate. maxSamples <= 0 means
// DefaultMaxSamples.
func NewUsage(maxSamples int, thresholds Thresholds) *Usage {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &Usage{thresholds: thresholds, maxSamples: maxSamples}
}

// Add folds one sample in, evicting the oldest once the window is full.
// Peaks survive eviction.
func (u *Usage) Add(s Sample) {
	if len(u.window) == u.maxSamples {
		evicted := u.window[0]
		u.window = u.window[1:]
		u.sumCPU -= evicted.CPUPercent
		u.sumMemory -= float64(evicted.MemoryBytes)
	}
	u.window = append(u.window, s)
	u.sumCPU += s.CPUPercent
	u.sumMemory += float64(s.MemoryBytes)
	u.totalAdded++

	if s.CPUPercent > u.peakCPU {
		u.peakCPU = s.CPUPercent
	}
	if s.MemoryBytes > u.peakMemory {
		u.peakMemory = s.MemoryBytes
	}
}

// SampleCount is the number of samples currently in the window.
func (u *Usage) SampleCount() int { return len(u.window) }

// TotalAdded is the number of samples ever observed, evicted ones included.
func (u *Usage) TotalAdded() int { return u.totalAdded }

// PeakCPU is the highest CPU percent ever observed.
func (u *Usage) PeakCPU() float64 { return u.peakCPU }

// PeakMemoryBytes is the highest resident memory ever observed.
func (u *Usage) PeakMemoryBytes() uint64 { return u.peakMemory }

func (u *Usage) averages() (cpu float64, memoryBytes float64) {
	n := float64(len(u.window))
	if n == 0 {
		return 0, 0
	}
	return u.sumCPU / n, u.sumMemory / n
}

// Meaningful reports whether the session's usage crossed the summary
// thresholds at any point.
func (u *Usage) Meaningful() bool {
	if len(u.window) == 0 {
		return false
	}
	return u.peakCPU > u.thresholds.SummaryCPUPercent ||
		bytesToMB(u.peakMemory) > u.thresholds.SummaryMemoryMB
}

// Summary returns the compact average "<cpu>%/<mem>" string and whether the
// field should be included at all.
func (u *Usage) Summary() (string, bool) {
	if !u.Meaningful() {
		return "", false
	}
	avgCPU, avgMemory := u.averages()
	return FormatUsage(avgCPU, uint64(avgMemory)), true
}

// Peak returns the compact peak string. It is included only when a peak
// ran more than the configured delta over its average and the absolute
// value is high (CPU above the peak CPU threshold, or memory above the
// peak memory threshold).
func (u *Usage) Peak() (string, bool) {
	if len(u.window) == 0 {
		return "", false
	}
	avgCPU, avgMemory := u.averages()
	delta := u.thresholds.PeakDeltaPercent / 100

	cpuSpike := avgCPU > 0 &&
		(u.peakCPU-avgCPU)/avgCPU > delta &&
		u.peakCPU > u.thresholds.PeakCPUPercent

	peakMB := bytesToMB(u.peakMemory)
	avgMB := avgMemory / (1 << 20)
	memorySpike := avgMB > 0 &&
		(peakMB-avgMB)/avgMB > delta &&
		peakMB > u.thresholds.PeakMemoryMB

	if !cpuSpike && !memorySpike {
		return "", false
	}
	return FormatUsage(u.peakCPU, u.peakMemory), true
}

func bytesToMB(b uint64) float64 {
	return float64(b) / (1 << 20)
}
