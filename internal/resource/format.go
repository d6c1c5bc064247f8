package resource

import (
	"math"
	"strconv"
)

// FormatUsage renders the compact "<cpu>%/<mem>" pair used in snapshots
// and reports, e.g. "85%/1.5g" or "75%/512m".
func FormatUsage(cpuPercent float64, memoryBytes uint64) string {
	return strconv.Itoa(int(math.Round(cpuPercent))) + "%/" + HumanizeMemory(memoryBytes)
}

// HumanizeMemory renders bytes as whole megabytes below 1GB ("512m") and
// gigabytes with at most one decimal above ("1.5g", "2g").
func HumanizeMemory(bytes uint64) string {
	mb := bytesToMB(bytes)
	if mb >= 1024 {
		g := mb / 1024
		if g == math.Trunc(g) {
			return strconv.Itoa(int(g)) + "g"
		}
		return strconv.FormatFloat(g, 'f', 1, 64) + "g"
	}
	return strconv.Itoa(int(mb)) + "m"
}
