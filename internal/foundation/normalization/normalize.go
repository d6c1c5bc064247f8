// Package normalization maps free-form config and flag strings onto typed
// enum values. Lookup is case-insensitive and whitespace-tolerant; unknown
// input yields the configured fallback rather than an error, so a typo in
// an optional field degrades to the default instead of failing the load.
package normalization

import "strings"

// Normalizer resolves raw strings to values of one enum type.
type Normalizer[T comparable] struct {
	byName   map[string]T
	fallback T
}

// New builds a Normalizer over the given name table. Keys are canonicalized
// once at construction, so callers may write them in any case.
func New[T comparable](names map[string]T, fallback T) *Normalizer[T] {
	byName := make(map[string]T, len(names))
	for name, v := range names {
		byName[canon(name)] = v
	}
	return &Normalizer[T]{byName: byName, fallback: fallback}
}

// Normalize resolves raw, returning the fallback for unknown input.
func (n *Normalizer[T]) Normalize(raw string) T {
	if v, ok := n.byName[canon(raw)]; ok {
		return v
	}
	return n.fallback
}

func canon(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
