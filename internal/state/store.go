// Package state persists versioned JSON documents in the data directory.
// Writes go through a temp file and os.Rename so readers never observe a
// partial document.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store atomically persists one versioned JSON document of type T.
type Store[T any] struct {
	path      string
	version   int
	normalize func(*T)
	mu        sync.Mutex
}

// envelope wraps the document with its schema version. A missing version
// field reads back as the current version of an empty v1-era file.
type envelope[T any] struct {
	Version int `json:"version"`
	Data    T   `json:"data"`
}

// NewStore builds a store for the document at path. The optional normalize
// hook fills defaults on fields missing from older documents; nil is fine.
func NewStore[T any](path string, version int, normalize func(*T)) *Store[T] {
	return &Store[T]{path: path, version: version, normalize: normalize}
}

// Path returns the backing file location.
func (s *Store[T]) Path() string { return s.path }

// Load reads the document. ok is false when no document has been saved yet.
func (s *Store[T]) Load() (value T, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store[T]) loadLocked() (value T, ok bool, err error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return value, false, nil
		}
		return value, false, fmt.Errorf("read state file: %w", err)
	}

	var e envelope[T]
	if err := json.Unmarshal(data, &e); err != nil {
		return value, false, fmt.Errorf("unmarshal state file %s: %w", filepath.Base(s.path), err)
	}
	if e.Version == 0 {
		e.Version = 1
	}
	if e.Version > s.version {
		return value, false, fmt.Errorf("state file %s has version %d, this build reads up to %d", filepath.Base(s.path), e.Version, s.version)
	}
	if s.normalize != nil {
		s.normalize(&e.Data)
	}
	return e.Data, true, nil
}

// Save writes the document atomically, creating the data directory if
// needed.
func (s *Store[T]) Save(value T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(value)
}

func (s *Store[T]) saveLocked(value T) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	data, err := json.MarshalIndent(envelope[T]{Version: s.version, Data: value}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temporary state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// Update applies fn to the current document and saves the result in one
// critical section, so concurrent updaters cannot lose writes.
func (s *Store[T]) Update(fn func(value T, ok bool) T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok, err := s.loadLocked()
	if err != nil {
		return err
	}
	return s.saveLocked(fn(value, ok))
}
