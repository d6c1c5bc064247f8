package buildcmd

import (
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/buildmon/internal/errors"
)

// generatorFiles are the per-generator entry points cmake writes next to its
// cache. One of them must exist for a configure run to count as done.
var generatorFiles = []string{"Makefile", "build.ninja"}

// ConfigureArtifactsPresent reports whether a configure phase actually
// produced a usable build tree: CMakeCache.txt plus a generator file. A zero
// exit code from cmake is not enough on its own.
func ConfigureArtifactsPresent(buildDir string) bool {
	if !fileExists(filepath.Join(buildDir, "CMakeCache.txt")) {
		return false
	}
	for _, name := range generatorFiles {
		if fileExists(filepath.Join(buildDir, name)) {
			return true
		}
	}
	return false
}

// PhaseSucceeded decides whether a finished phase advances the chain. The
// build phase only needs a zero exit; configure additionally needs its
// artifacts on disk.
func PhaseSucceeded(phase Phase, exitCode int, buildDir string) bool {
	if exitCode != 0 {
		return false
	}
	if phase == PhaseConfigure {
		return ConfigureArtifactsPresent(buildDir)
	}
	return true
}

// EnsureBuildDir creates the build directory if it is missing so a configure
// phase has somewhere to run. Called before spawning, never during planning.
func EnsureBuildDir(buildDir string) error {
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return errors.WrapError(err, errors.CategorySpawn, "create build directory "+buildDir)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
