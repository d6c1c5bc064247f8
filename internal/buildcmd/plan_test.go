package buildcmd

import (
	"path/filepath"
	"reflect"
	"runtime"
	"strconv"
	"testing"

	"git.home.luguber.info/inful/buildmon/internal/config"
)

func testProject() config.ProjectConfig {
	return config.ProjectConfig{Root: "/src/proj", BuildDir: "build"}
}

func TestNewPlanBuildOnly(t *testing.T) {
	plan, err := NewPlan(Request{Targets: []string{"websocket"}, ParallelJobs: 4}, testProject())
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}
	if len(plan.Commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(plan.Commands))
	}
	cmd := plan.Commands[0]
	if cmd.Phase != PhaseBuild {
		t.Errorf("phase = %q, want build", cmd.Phase)
	}
	want := []string{"make", "-j4", "websocket"}
	if !reflect.DeepEqual(cmd.Argv, want) {
		t.Errorf("argv = %v, want %v", cmd.Argv, want)
	}
	if cmd.Dir != filepath.Join("/src/proj", "build") {
		t.Errorf("dir = %q, want build dir under root", cmd.Dir)
	}
	if plan.Parallel != 4 {
		t.Errorf("parallel = %d, want 4", plan.Parallel)
	}
}

func TestNewPlanChainedPhases(t *testing.T) {
	plan, err := NewPlan(Request{Targets: []string{"all"}, CMake: true, ParallelJobs: 2}, testProject())
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}
	if len(plan.Commands) != 2 {
		t.Fatalf("expected configure+build, got %d commands", len(plan.Commands))
	}
	configure := plan.Commands[0]
	if configure.Phase != PhaseConfigure {
		t.Errorf("first phase = %q, want configure", configure.Phase)
	}
	wantConfigure := []string{"cmake", "..", "--log-level=STATUS", "--no-warn-unused-cli"}
	if !reflect.DeepEqual(configure.Argv, wantConfigure) {
		t.Errorf("configure argv = %v, want %v", configure.Argv, wantConfigure)
	}
	if configure.Dir != plan.Commands[1].Dir {
		t.Errorf("phases should share the build dir: %q vs %q", configure.Dir, plan.Commands[1].Dir)
	}
	if plan.Commands[1].Phase != PhaseBuild {
		t.Errorf("second phase = %q, want build", plan.Commands[1].Phase)
	}
}

func TestNewPlanCMakeOnly(t *testing.T) {
	plan, err := NewPlan(Request{CMakeOnly: true}, testProject())
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}
	if len(plan.Commands) != 1 || plan.Commands[0].Phase != PhaseConfigure {
		t.Fatalf("expected configure only, got %+v", plan.Commands)
	}
	if plan.Background {
		t.Error("configure-only plan should not background")
	}
}

func TestNewPlanAbsoluteBuildDir(t *testing.T) {
	proj := config.ProjectConfig{Root: "/src/proj", BuildDir: "/tmp/out"}
	plan, err := NewPlan(Request{Targets: []string{"all"}}, proj)
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}
	if plan.Commands[0].Dir != "/tmp/out" {
		t.Errorf("absolute build dir should be kept as-is, got %q", plan.Commands[0].Dir)
	}
}

func TestNewPlanRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		req  Request
	}{
		{"blank target", Request{Targets: []string{"  "}}},
		{"target with space", Request{Targets: []string{"foo bar"}}},
		{"negative parallel", Request{ParallelJobs: -1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewPlan(tc.req, testProject()); err == nil {
				t.Errorf("expected validation error")
			}
		})
	}
}

func TestResolveParallel(t *testing.T) {
	if got := ResolveParallel(8); got != 8 {
		t.Errorf("ResolveParallel(8) = %d", got)
	}
	if got := ResolveParallel(0); got != runtime.NumCPU() {
		t.Errorf("ResolveParallel(0) = %d, want NumCPU", got)
	}
	autoArgv := "make -j" + strconv.Itoa(runtime.NumCPU())
	plan, err := NewPlan(Request{Targets: []string{"x"}}, testProject())
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}
	got := plan.Commands[0].Argv[0] + " " + plan.Commands[0].Argv[1]
	if got != autoArgv {
		t.Errorf("auto argv prefix = %q, want %q", got, autoArgv)
	}
}

func TestResolveBackground(t *testing.T) {
	cases := []struct {
		name      string
		mode      BackgroundMode
		targets   []string
		cmakeOnly bool
		want      bool
	}{
		{"never wins", BackgroundNever, []string{"all"}, false, false},
		{"always wins", BackgroundAlways, []string{"small"}, false, true},
		{"auto empty targets", BackgroundAuto, nil, false, true},
		{"auto all", BackgroundAuto, []string{"all"}, false, true},
		{"auto install", BackgroundAuto, []string{"install"}, false, true},
		{"auto single target", BackgroundAuto, []string{"websocket"}, false, false},
		{"auto single package", BackgroundAuto, []string{"package_crypto/fast"}, false, false},
		{"auto two packages", BackgroundAuto, []string{"package_crypto/fast", "package_net/fast"}, false, true},
		{"auto cmake only", BackgroundAuto, nil, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ResolveBackground(tc.mode, tc.targets, tc.cmakeOnly); got != tc.want {
				t.Errorf("ResolveBackground(%v, %v, %v) = %v, want %v",
					tc.mode, tc.targets, tc.cmakeOnly, got, tc.want)
			}
		})
	}
}

func TestNormalizeBackgroundMode(t *testing.T) {
	cases := map[string]BackgroundMode{
		"auto":    BackgroundAuto,
		"always":  BackgroundAlways,
		"never":   BackgroundNever,
		"true":    BackgroundAlways,
		"false":   BackgroundNever,
		"ALWAYS":  BackgroundAlways,
		"":        BackgroundAuto,
		"garbage": BackgroundAuto,
	}
	for raw, want := range cases {
		if got := NormalizeBackgroundMode(raw); got != want {
			t.Errorf("NormalizeBackgroundMode(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestPlanAccessors(t *testing.T) {
	plan, err := NewPlan(Request{Targets: []string{"zeta", "alpha"}, CMake: true, ParallelJobs: 1}, testProject())
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}
	if got := plan.SortedTargets(); !reflect.DeepEqual(got, []string{"alpha", "zeta"}) {
		t.Errorf("SortedTargets = %v", got)
	}
	// SortedTargets must not reorder the plan itself.
	if !reflect.DeepEqual(plan.Targets, []string{"zeta", "alpha"}) {
		t.Errorf("plan targets mutated: %v", plan.Targets)
	}
	build, ok := plan.BuildCommand()
	if !ok || build.Phase != PhaseBuild {
		t.Fatalf("BuildCommand not found in chained plan")
	}
	if !reflect.DeepEqual(plan.PrimaryArgv(), build.Argv) {
		t.Errorf("PrimaryArgv should be the make argv when present")
	}

	configureOnly, err := NewPlan(Request{CMakeOnly: true}, testProject())
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}
	if _, ok := configureOnly.BuildCommand(); ok {
		t.Error("configure-only plan should have no build command")
	}
	if got := configureOnly.PrimaryArgv(); len(got) == 0 || got[0] != "cmake" {
		t.Errorf("PrimaryArgv for configure-only plan = %v", got)
	}
}
