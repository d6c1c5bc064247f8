package main

import (
	stdErrors "errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"git.home.luguber.info/inful/buildmon/internal/config"
	berrors "git.home.luguber.info/inful/buildmon/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	root := &Root{Config: filepath.Join(t.TempDir(), "absent.yaml")}

	cfg, path, err := loadConfig(root)
	require.NoError(t, err)
	require.Empty(t, path)
	require.Equal(t, "./buildmon-data", cfg.Storage.DataDir)
	require.Nil(t, cfg.Daemon)
	require.NotNil(t, cfg.Monitoring)
}

func TestLoadConfigAppliesFlagOverrides(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "buildmon.yaml")
	yaml := "project:\n  root: .\nstorage:\n  data_dir: " + filepath.Join(dir, "from-file") + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o644))

	override := filepath.Join(dir, "from-flag")
	root := &Root{Config: cfgPath, DataDir: override, LogLevel: "debug", LogFormat: "json"}

	cfg, path, err := loadConfig(root)
	require.NoError(t, err)
	require.Equal(t, cfgPath, path)
	require.Equal(t, override, cfg.Storage.DataDir)
	require.Equal(t, config.LogLevelDebug, cfg.Monitoring.Logging.Level)
	require.Equal(t, config.LogFormatJSON, cfg.Monitoring.Logging.Format)
}

func TestLoadConfigSurfacesValidationErrors(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "buildmon.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("sampler:\n  cpu_threshold: 150\n"), 0o644))

	_, _, err := loadConfig(&Root{Config: cfgPath})
	require.Error(t, err)

	var me *berrors.MonitorError
	require.True(t, stdErrors.As(err, &me))
	require.Equal(t, berrors.CategoryValidation, me.Category)
}

func TestLoadConfigWrapsUnparseableFile(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "buildmon.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("sampler: ["), 0o644))

	_, _, err := loadConfig(&Root{Config: cfgPath})
	require.Error(t, err)

	var me *berrors.MonitorError
	require.True(t, stdErrors.As(err, &me))
	require.Equal(t, berrors.CategoryConfig, me.Category)
}

func TestInitCommand(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "buildmon.yaml")
	root := &Root{Config: cfgPath}

	cmd := InitCmd{}
	require.NoError(t, cmd.Run(root))
	require.FileExists(t, cfgPath)

	// A second run refuses to clobber the file without --force.
	err := cmd.Run(root)
	require.Error(t, err)
	var me *berrors.MonitorError
	require.True(t, stdErrors.As(err, &me))
	require.Equal(t, berrors.CategoryConfig, me.Category)

	require.NoError(t, (&InitCmd{Force: true}).Run(root))
}

func TestStopBudgetExceedsGrace(t *testing.T) {
	cfg := config.Default()
	cfg.Build.GracePeriod = "2s"
	require.Equal(t, 7*time.Second, stopBudget(cfg))
}

// writeBuildConfig lays out a self-contained project tree and returns the
// config path: builds run in root itself and all state stays in the temp
// directory.
func writeBuildConfig(t *testing.T, dir string) string {
	t.Helper()
	cfgPath := filepath.Join(dir, "buildmon.yaml")
	yaml := "project:\n" +
		"  root: " + dir + "\n" +
		"  build_dir: \".\"\n" +
		"build:\n" +
		"  grace_period: 1s\n" +
		"storage:\n" +
		"  data_dir: " + filepath.Join(dir, "data") + "\n" +
		"sampler:\n" +
		"  interval: 50ms\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o644))
	return cfgPath
}

func TestBuildCommandEndToEnd(t *testing.T) {
	if _, err := exec.LookPath("make"); err != nil {
		t.Skip("make not installed")
	}
	dir := t.TempDir()
	cfgPath := writeBuildConfig(t, dir)
	makefile := "all:\n\t@echo compiling\n\t@echo linking\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Makefile"), []byte(makefile), 0o644))

	cmd := BuildCmd{Targets: []string{"all"}, Background: "auto"}
	require.NoError(t, cmd.Run(&Root{Config: cfgPath}))

	// The run leaves durable state behind: registry snapshot and history DB.
	require.FileExists(t, filepath.Join(dir, "data", "sessions.json"))
	require.FileExists(t, filepath.Join(dir, "data", "history.db"))
}

func TestBuildCommandFailureExitsNonZero(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeBuildConfig(t, dir)
	// No makefile: the session settles FAILED through a spawn or make error.

	cmd := BuildCmd{Targets: []string{"all"}, Background: "auto"}
	err := cmd.Run(&Root{Config: cfgPath})
	require.Error(t, err)

	var me *berrors.MonitorError
	require.True(t, stdErrors.As(err, &me))
	require.Equal(t, berrors.CategoryProcess, me.Category)
	require.Equal(t, 8, berrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))
}
