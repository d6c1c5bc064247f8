package buildcmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"git.home.luguber.info/inful/buildmon/internal/config"
)

func planFor(t *testing.T, root string, req Request) Plan {
	t.Helper()
	plan, err := NewPlan(req, config.ProjectConfig{Root: root, BuildDir: "build"})
	if err != nil {
		t.Fatalf("NewPlan: %v", err)
	}
	return plan
}

func TestCaptureWithoutRepository(t *testing.T) {
	root := t.TempDir()
	req := Request{Targets: []string{"all"}, ParallelJobs: 2}
	ctx := Capture(root, req, planFor(t, root, req))

	if ctx.WorkingDir != root {
		t.Errorf("working dir = %q, want %q", ctx.WorkingDir, root)
	}
	if ctx.Revision != "" || ctx.Dirty {
		t.Errorf("no repository should mean no revision, got %q dirty=%v", ctx.Revision, ctx.Dirty)
	}
	if ctx.ParallelJobs != 2 {
		t.Errorf("parallel jobs = %d, want 2", ctx.ParallelJobs)
	}
	if len(ctx.Argv) == 0 || ctx.Argv[0] != "make" {
		t.Errorf("argv = %v, want make invocation", ctx.Argv)
	}
	if ctx.CapturedAt.IsZero() {
		t.Error("captured_at not set")
	}
}

func TestCaptureWithRepository(t *testing.T) {
	root := t.TempDir()
	repo, err := git.PlainInit(root, false)
	if err != nil {
		t.Fatalf("init repo: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "CMakeLists.txt"), []byte("project(x)\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := wt.Add("CMakeLists.txt"); err != nil {
		t.Fatalf("add: %v", err)
	}
	hash, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "t@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	req := Request{CMake: true, Targets: []string{"all"}}
	ctx := Capture(root, req, planFor(t, root, req))

	if ctx.Revision != hash.String()[:8] {
		t.Errorf("revision = %q, want %q", ctx.Revision, hash.String()[:8])
	}
	if ctx.Dirty {
		t.Error("fresh commit should leave a clean worktree")
	}
	if !ctx.CMake {
		t.Error("cmake flag should be recorded")
	}

	// An untracked file makes the worktree dirty.
	if err := os.WriteFile(filepath.Join(root, "extra.cpp"), []byte("int x;\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	ctx = Capture(root, req, planFor(t, root, req))
	if !ctx.Dirty {
		t.Error("untracked file should mark the worktree dirty")
	}
}
