package state

import (
	"path/filepath"

	"git.home.luguber.info/inful/buildmon/internal/deps"
)

// DependenciesFile is the dependency snapshot document name inside the data
// directory.
const DependenciesFile = "dependencies.json"

const dependenciesVersion = 1

// DependencyStore keeps one dependency snapshot per project root in a single
// versioned document.
type DependencyStore struct {
	store *Store[map[string]deps.Snapshot]
}

// NewDependencyStore builds the store under dataDir.
func NewDependencyStore(dataDir string) *DependencyStore {
	path := filepath.Join(dataDir, DependenciesFile)
	normalize := func(m *map[string]deps.Snapshot) {
		if *m == nil {
			*m = make(map[string]deps.Snapshot)
		}
	}
	return &DependencyStore{store: NewStore(path, dependenciesVersion, normalize)}
}

// ForRoot returns the snapshot view for one project root.
func (d *DependencyStore) ForRoot(root string) deps.SnapshotStore {
	return &rootSnapshots{store: d.store, root: root}
}

type rootSnapshots struct {
	store *Store[map[string]deps.Snapshot]
	root  string
}

func (r *rootSnapshots) LoadSnapshot() (deps.Snapshot, bool, error) {
	all, ok, err := r.store.Load()
	if err != nil || !ok {
		return nil, false, err
	}
	snap, ok := all[r.root]
	return snap, ok, nil
}

func (r *rootSnapshots) SaveSnapshot(snap deps.Snapshot) error {
	return r.store.Update(func(all map[string]deps.Snapshot, ok bool) map[string]deps.Snapshot {
		if all == nil {
			all = make(map[string]deps.Snapshot)
		}
		all[r.root] = snap
		return all
	})
}
