package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/steermux/steermux/pkg/steering"
)

// Source is an immutable copy of one source's state as of snapshot time.
type Source struct {
	ID        string
	Value     float64
	LastSeen  time.Time
	Connected bool
}

type sourceState struct {
	value     float64
	lastSeen  time.Time
	connected bool
}

// Registry is a thread-safe in-memory store of per-source steering state,
// keyed by source ID. Staleness is two-tier: a source whose last update is
// older than staleAfter is excluded from Snapshot but kept in memory, so a
// brief network hiccup does not flap the contributing-source set; only after
// evictAfter does the eviction loop purge it entirely.
type Registry struct {
	mu         sync.RWMutex
	data       map[string]*sourceState
	staleAfter time.Duration
	evictAfter time.Duration
	now        func() time.Time // injectable for deterministic tests
}

// New creates a Registry with the given staleness and eviction windows.
func New(staleAfter, evictAfter time.Duration) *Registry {
	return &Registry{
		data:       make(map[string]*sourceState),
		staleAfter: staleAfter,
		evictAfter: evictAfter,
		now:        time.Now,
	}
}

// Upsert stores value for the given source, clamped to [-1, 1], and marks the
// source as seen now and connected. NaN and infinite values are dropped
// silently: Upsert returns false and the prior state is untouched.
func (r *Registry) Upsert(id string, value float64) bool {
	if !steering.Valid(value) {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.data[id]
	if !ok {
		s = &sourceState{}
		r.data[id] = s
	}
	s.value = steering.Clamp(value)
	s.lastSeen = r.now()
	s.connected = true
	return true
}

// Get returns a copy of the state for the given source ID, if present.
// The entry may be stale; callers that care must check LastSeen themselves.
func (r *Registry) Get(id string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.data[id]
	if !ok {
		return Source{}, false
	}
	return Source{ID: id, Value: s.value, LastSeen: s.lastSeen, Connected: s.connected}, true
}

// Snapshot returns copies of all sources seen within the staleness window.
// Stale entries that have not yet been evicted are excluded.
func (r *Registry) Snapshot() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cutoff := r.now().Add(-r.staleAfter)
	out := make([]Source, 0, len(r.data))
	for id, s := range r.data {
		if s.lastSeen.After(cutoff) || s.lastSeen.Equal(cutoff) {
			out = append(out, Source{ID: id, Value: s.value, LastSeen: s.lastSeen, Connected: s.connected})
		}
	}
	return out
}

// All returns copies of every entry currently held, stale ones included.
func (r *Registry) All() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Source, 0, len(r.data))
	for id, s := range r.data {
		out = append(out, Source{ID: id, Value: s.value, LastSeen: s.lastSeen, Connected: s.connected})
	}
	return out
}

// MarkDisconnected clears the connected flag for the given source but keeps
// its entry: a momentary disconnect must not instantly zero out a still
// relevant steering contribution. The entry ages out under the normal
// staleness and eviction windows.
func (r *Registry) MarkDisconnected(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.data[id]; ok {
		s.connected = false
	}
}

// Remove deletes the entry for the given source ID. Idempotent.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, id)
}

// Count returns the total number of entries held, including stale ones.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data)
}

// Stats returns the number of live and stale entries as of now.
func (r *Registry) Stats() (live, stale int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cutoff := r.now().Add(-r.staleAfter)
	for _, s := range r.data {
		if s.lastSeen.After(cutoff) || s.lastSeen.Equal(cutoff) {
			live++
		} else {
			stale++
		}
	}
	return live, stale
}

// StaleAfter returns the configured staleness window.
func (r *Registry) StaleAfter() time.Duration { return r.staleAfter }

// Evict removes entries whose last update is older than now minus the
// eviction window. It returns the number of entries removed.
func (r *Registry) Evict(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := now.Add(-r.evictAfter)
	removed := 0
	for id, s := range r.data {
		if s.lastSeen.Before(cutoff) {
			delete(r.data, id)
			removed++
		}
	}
	return removed
}

// Run starts the background eviction loop. It ticks at half the eviction
// window (minimum 1 second) so dead sources are reclaimed promptly. Run
// blocks until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	interval := r.evictAfter / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := r.Evict(now); n > 0 {
				slog.Debug("registry: evicted silent sources", "count", n)
			}
		}
	}
}
