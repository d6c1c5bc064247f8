package supervisor

import (
	"sort"
	"sync"
	"time"
)

// Registry tracks every session of this supervisor, live and terminal.
// The lock guards only the map; per-session state has its own lock, so
// no I/O ever happens under the registry lock.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// All returns the tracked sessions ordered by creation time.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt().Equal(out[j].CreatedAt()) {
			return out[i].CreatedAt().Before(out[j].CreatedAt())
		}
		return out[i].ID() < out[j].ID()
	})
	return out
}

// ActiveForeground returns the session blocking new foreground starts,
// if any.
func (r *Registry) ActiveForeground() (*Session, bool) {
	for _, s := range r.All() {
		if s.Foreground() {
			return s, true
		}
	}
	return nil, false
}

// ActiveCount counts sessions that still have a supervised process.
func (r *Registry) ActiveCount() int {
	n := 0
	for _, s := range r.All() {
		if s.Status().Active() {
			n++
		}
	}
	return n
}

// OwnedPIDs lists the root pids of active sessions. Conflict scans exclude
// these trees.
func (r *Registry) OwnedPIDs() []int32 {
	var pids []int32
	for _, s := range r.All() {
		if pid := s.PID(); pid > 0 {
			pids = append(pids, int32(pid))
		}
	}
	return pids
}

// EvictTerminalBefore drops terminal sessions that ended before the cutoff
// and returns their ids.
func (r *Registry) EvictTerminalBefore(cutoff time.Time) []string {
	var evicted []string
	for _, s := range r.All() {
		s.mu.Lock()
		stale := s.status.Terminal() && !s.ended.IsZero() && s.ended.Before(cutoff)
		s.mu.Unlock()
		if stale {
			evicted = append(evicted, s.ID())
		}
	}
	for _, id := range evicted {
		r.Remove(id)
	}
	return evicted
}
