// Package history keeps rolling build-duration windows keyed by target set
// and parallelism, and predicts completion times from them.
package history

import (
	"sort"
	"strconv"
	"strings"
)

// Key canonicalizes a target set and parallel job count into the string that
// keys a duration window. Different job counts never share a window.
func Key(targets []string, parallelJobs int) string {
	return baseKey(targets) + "_j" + strconv.Itoa(parallelJobs)
}

func baseKey(targets []string) string {
	if len(targets) == 0 {
		return "full_build"
	}
	for _, t := range targets {
		if t == "all" || t == "install" {
			return "full_build"
		}
	}

	sorted := make([]string, len(targets))
	copy(sorted, targets)
	sort.Strings(sorted)

	if len(sorted) == 1 {
		target := sorted[0]
		if name, ok := strings.CutSuffix(target, "/fast"); ok {
			return "package_" + strings.TrimPrefix(name, "package_")
		}
		return "target_" + target
	}

	for _, t := range sorted {
		if !strings.HasPrefix(t, "package_") {
			return "multi_target_" + strconv.Itoa(len(sorted))
		}
	}
	return "multi_package_" + strconv.Itoa(len(sorted))
}
