package buildcmd

import (
	"time"

	git "github.com/go-git/go-git/v5"
)

// Context captures the environment a session started in, for reports and
// the persisted registry snapshot.
type Context struct {
	WorkingDir   string    `json:"working_dir"`
	Argv         []string  `json:"argv"`
	CMake        bool      `json:"cmake"`
	ParallelJobs int       `json:"parallel_jobs"`
	Revision     string    `json:"revision,omitempty"`
	Dirty        bool      `json:"dirty,omitempty"`
	CapturedAt   time.Time `json:"captured_at"`
}

// Capture records the build context for a planned session. A project tree
// without a git repository yields an empty revision, not an error.
func Capture(root string, req Request, plan Plan) Context {
	ctx := Context{
		WorkingDir:   root,
		Argv:         plan.PrimaryArgv(),
		CMake:        req.CMake || req.CMakeOnly,
		ParallelJobs: plan.Parallel,
		CapturedAt:   time.Now(),
	}
	ctx.Revision, ctx.Dirty = sourceRevision(root)
	return ctx
}

// sourceRevision resolves the HEAD short hash and worktree dirtiness of the
// repository containing root.
func sourceRevision(root string) (string, bool) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", false
	}
	head, err := repo.Head()
	if err != nil {
		return "", false
	}
	revision := head.Hash().String()[:8]

	worktree, err := repo.Worktree()
	if err != nil {
		return revision, false
	}
	status, err := worktree.Status()
	if err != nil {
		return revision, false
	}
	return revision, !status.IsClean()
}
