package merge

import "sync"

// Table holds the live weight set. Config hot-reload swaps the whole set
// atomically via Replace; readers always see either the old or the new set,
// never a mix.
type Table struct {
	mu sync.RWMutex
	w  Weights
}

// NewTable creates a Table initialized with w. A nil w means no configured
// weights: every source gets an equal share.
func NewTable(w Weights) *Table {
	t := &Table{}
	t.Replace(w)
	return t
}

// Current returns a copy of the active weight set.
func (t *Table) Current() Weights {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(Weights, len(t.w))
	for k, v := range t.w {
		out[k] = v
	}
	return out
}

// Replace installs w as the active weight set.
func (t *Table) Replace(w Weights) {
	cp := make(Weights, len(w))
	for k, v := range w {
		cp[k] = v
	}
	t.mu.Lock()
	t.w = cp
	t.mu.Unlock()
}
