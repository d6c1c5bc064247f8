// Package buildcmd turns a build request into the concrete cmake/make
// invocations a session will run. Planning is pure: nothing here spawns a
// process or touches the build tree beyond reading configuration.
package buildcmd

import (
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/buildmon/internal/config"
	"git.home.luguber.info/inful/buildmon/internal/errors"
	"git.home.luguber.info/inful/buildmon/internal/foundation/normalization"
)

// Phase names one process invocation inside a session.
type Phase string

const (
	// PhaseConfigure is the cmake configure step.
	PhaseConfigure Phase = "configure"
	// PhaseBuild is the make step.
	PhaseBuild Phase = "build"
)

// BackgroundMode controls whether a session detaches from the caller.
type BackgroundMode string

const (
	BackgroundAuto   BackgroundMode = "auto"
	BackgroundAlways BackgroundMode = "always"
	BackgroundNever  BackgroundMode = "never"
)

var backgroundNormalizer = normalization.New(map[string]BackgroundMode{
	"auto":   BackgroundAuto,
	"always": BackgroundAlways,
	"never":  BackgroundNever,
	"true":   BackgroundAlways,
	"false":  BackgroundNever,
}, BackgroundAuto)

// NormalizeBackgroundMode maps raw user input (CLI flag, API field) onto a
// BackgroundMode, defaulting to auto for anything unrecognized.
func NormalizeBackgroundMode(raw string) BackgroundMode {
	return backgroundNormalizer.Normalize(raw)
}

// Request is a fully specified build invocation before planning.
type Request struct {
	Targets      []string
	CMake        bool
	CMakeOnly    bool
	ParallelJobs int // 0 means auto
	Background   BackgroundMode
	Force        bool
}

// Command is one planned process invocation.
type Command struct {
	Phase Phase
	Argv  []string
	Dir   string
}

// Plan is the resolved execution plan for a session: the phase chain plus
// the decisions (parallelism, backgrounding) that shaped it.
type Plan struct {
	Commands   []Command
	Parallel   int
	Background bool
	Targets    []string
}

// configureArgs is the fixed cmake configure invocation, run from inside the
// build directory against the parent source tree.
var configureArgs = []string{"cmake", "..", "--log-level=STATUS", "--no-warn-unused-cli"}

// NewPlan resolves a request against the project layout. Targets are kept in
// caller order; canonicalization for history lookup happens elsewhere.
func NewPlan(req Request, proj config.ProjectConfig) (Plan, error) {
	for _, t := range req.Targets {
		if strings.TrimSpace(t) == "" {
			return Plan{}, errors.ValidationFailed("targets", "blank target name")
		}
		if strings.ContainsAny(t, " \t\n") {
			return Plan{}, errors.ValidationFailed("targets", "target "+strconv.Quote(t)+" contains whitespace")
		}
	}
	if req.ParallelJobs < 0 {
		return Plan{}, errors.ValidationFailed("parallel_jobs", "must be zero or positive")
	}

	root := proj.Root
	if root == "" {
		root = "."
	}
	buildDir := proj.BuildDir
	if buildDir == "" {
		buildDir = "build"
	}
	if !filepath.IsAbs(buildDir) {
		buildDir = filepath.Join(root, buildDir)
	}

	parallel := ResolveParallel(req.ParallelJobs)

	plan := Plan{
		Parallel:   parallel,
		Background: ResolveBackground(req.Background, req.Targets, req.CMakeOnly),
		Targets:    append([]string(nil), req.Targets...),
	}

	if req.CMake || req.CMakeOnly {
		plan.Commands = append(plan.Commands, Command{
			Phase: PhaseConfigure,
			Argv:  append([]string(nil), configureArgs...),
			Dir:   buildDir,
		})
	}
	if !req.CMakeOnly {
		argv := make([]string, 0, len(req.Targets)+2)
		argv = append(argv, "make", "-j"+strconv.Itoa(parallel))
		argv = append(argv, req.Targets...)
		plan.Commands = append(plan.Commands, Command{
			Phase: PhaseBuild,
			Argv:  argv,
			Dir:   buildDir,
		})
	}

	return plan, nil
}

// ResolveParallel maps the configured job count onto a concrete -j value.
// Zero means one job per CPU.
func ResolveParallel(jobs int) int {
	if jobs > 0 {
		return jobs
	}
	return runtime.NumCPU()
}

// ResolveBackground applies the auto rule: full-tree targets (all, install),
// more than one package target, or an empty target set run in the background.
// A configure-only run never backgrounds automatically.
func ResolveBackground(mode BackgroundMode, targets []string, cmakeOnly bool) bool {
	switch mode {
	case BackgroundAlways:
		return true
	case BackgroundNever:
		return false
	}
	if cmakeOnly {
		return false
	}
	if len(targets) == 0 {
		return true
	}
	packages := 0
	for _, t := range targets {
		if t == "all" || t == "install" {
			return true
		}
		if isPackageTarget(t) {
			packages++
		}
	}
	return packages > 1
}

// isPackageTarget reports whether a target names a generated per-package
// rule (package_foo, package_foo/fast).
func isPackageTarget(target string) bool {
	return strings.Contains(target, "package_")
}

// SortedTargets returns the target set in canonical order for display and
// keying without mutating the plan.
func (p Plan) SortedTargets() []string {
	out := append([]string(nil), p.Targets...)
	sort.Strings(out)
	return out
}

// BuildCommand returns the make invocation of the plan, if any.
func (p Plan) BuildCommand() (Command, bool) {
	for _, c := range p.Commands {
		if c.Phase == PhaseBuild {
			return c, true
		}
	}
	return Command{}, false
}

// PrimaryArgv is the argv recorded in the session's build context: the make
// command when the plan has one, otherwise the configure command.
func (p Plan) PrimaryArgv() []string {
	if c, ok := p.BuildCommand(); ok {
		return c.Argv
	}
	if len(p.Commands) > 0 {
		return p.Commands[0].Argv
	}
	return nil
}
