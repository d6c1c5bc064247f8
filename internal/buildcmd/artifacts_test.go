package buildcmd

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestConfigureArtifactsPresent(t *testing.T) {
	dir := t.TempDir()

	if ConfigureArtifactsPresent(dir) {
		t.Error("empty dir should have no artifacts")
	}

	touch(t, filepath.Join(dir, "CMakeCache.txt"))
	if ConfigureArtifactsPresent(dir) {
		t.Error("cache without a generator file is not a complete configure")
	}

	touch(t, filepath.Join(dir, "Makefile"))
	if !ConfigureArtifactsPresent(dir) {
		t.Error("cache + Makefile should count")
	}
}

func TestConfigureArtifactsNinja(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "CMakeCache.txt"))
	touch(t, filepath.Join(dir, "build.ninja"))
	if !ConfigureArtifactsPresent(dir) {
		t.Error("cache + build.ninja should count")
	}
}

func TestPhaseSucceeded(t *testing.T) {
	dir := t.TempDir()

	if PhaseSucceeded(PhaseBuild, 2, dir) {
		t.Error("nonzero exit never succeeds")
	}
	if !PhaseSucceeded(PhaseBuild, 0, dir) {
		t.Error("build phase needs only a zero exit")
	}
	if PhaseSucceeded(PhaseConfigure, 0, dir) {
		t.Error("configure with zero exit but no artifacts must not advance")
	}

	touch(t, filepath.Join(dir, "CMakeCache.txt"))
	touch(t, filepath.Join(dir, "Makefile"))
	if !PhaseSucceeded(PhaseConfigure, 0, dir) {
		t.Error("configure with artifacts should succeed")
	}
}

func TestEnsureBuildDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "build")
	if err := EnsureBuildDir(dir); err != nil {
		t.Fatalf("EnsureBuildDir: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("build dir not created: %v", err)
	}
	// Idempotent on an existing dir.
	if err := EnsureBuildDir(dir); err != nil {
		t.Fatalf("EnsureBuildDir second call: %v", err)
	}
}
