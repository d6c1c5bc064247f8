package deps

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/buildmon/internal/config"
	"git.home.luguber.info/inful/buildmon/internal/errors"
)

// Fingerprint identifies one tracked file's content. Size and ModTime are
// bookkeeping only; equality is decided by the hash.
type Fingerprint struct {
	SHA256  string    `json:"sha256"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mtime"`
}

// Snapshot maps slash-separated paths relative to the project root to their
// fingerprints.
type Snapshot map[string]Fingerprint

// SnapshotStore persists the prior snapshot between builds. Load returns
// ok=false when no snapshot has been saved yet.
type SnapshotStore interface {
	LoadSnapshot() (Snapshot, bool, error)
	SaveSnapshot(Snapshot) error
}

// Detector runs a dependency scan at build start.
type Detector interface {
	Detect(ctx context.Context) (Report, error)
}

// Tracker walks the project tree for dependency-related files and diffs
// their fingerprints against the stored snapshot.
type Tracker struct {
	root       string
	extraPaths []string
	ignore     map[string]bool
	store      SnapshotStore
}

// NewTracker builds a tracker rooted at the project directory.
func NewTracker(root string, cfg config.DependencyConfig, store SnapshotStore) *Tracker {
	ignore := make(map[string]bool, len(cfg.IgnoreDirs))
	for _, dir := range cfg.IgnoreDirs {
		ignore[dir] = true
	}
	return &Tracker{
		root:       root,
		extraPaths: cfg.ExtraPaths,
		ignore:     ignore,
		store:      store,
	}
}

// Detect takes a fresh snapshot, diffs it against the stored one, and
// persists the fresh snapshot as the new baseline. The first scan of a
// project establishes the baseline and reports nothing.
func (t *Tracker) Detect(ctx context.Context) (Report, error) {
	fresh, err := t.snapshot(ctx)
	if err != nil {
		return Report{}, err
	}
	prior, ok, err := t.store.LoadSnapshot()
	if err != nil {
		return Report{}, errors.Wrap(err, errors.CategoryStorage, errors.SeverityError, "load dependency snapshot")
	}
	if err := t.store.SaveSnapshot(fresh); err != nil {
		return Report{}, errors.Wrap(err, errors.CategoryStorage, errors.SeverityError, "save dependency snapshot")
	}
	if !ok {
		return Report{Impact: ImpactNone}, nil
	}
	changes := diff(prior, fresh)
	return Report{Changes: changes, Impact: highestImpact(changes)}, nil
}

func (t *Tracker) snapshot(ctx context.Context) (Snapshot, error) {
	snap := make(Snapshot)
	err := filepath.WalkDir(t.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == t.root {
				return err
			}
			// Unreadable entries are skipped, not fatal.
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != t.root && t.ignore[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		if _, tracked := classifyFile(d.Name()); !tracked {
			return nil
		}
		t.addFile(snap, path)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryStorage, errors.SeverityError, "scan dependency files")
	}
	for _, extra := range t.extraPaths {
		t.addFile(snap, filepath.Join(t.root, extra))
	}
	return snap, nil
}

// addFile fingerprints one file into the snapshot. Files that vanish or
// cannot be read between listing and hashing are skipped.
func (t *Tracker) addFile(snap Snapshot, path string) {
	fp, err := fingerprintFile(path)
	if err != nil {
		return
	}
	rel, err := filepath.Rel(t.root, path)
	if err != nil {
		return
	}
	snap[filepath.ToSlash(rel)] = fp
}

func fingerprintFile(path string) (Fingerprint, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Fingerprint{}, err
	}
	if !info.Mode().IsRegular() {
		return Fingerprint{}, errors.New(errors.CategoryStorage, errors.SeverityWarning, "not a regular file")
	}
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{
		SHA256:  hex.EncodeToString(h.Sum(nil)),
		Size:    info.Size(),
		ModTime: info.ModTime().UTC(),
	}, nil
}

// NoopDetector never reports changes. Selected when dependency tracking is
// disabled.
type NoopDetector struct{}

func (NoopDetector) Detect(context.Context) (Report, error) {
	return Report{Impact: ImpactNone}, nil
}
