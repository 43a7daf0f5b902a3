package merge

import (
	"sync"

	"github.com/steermux/steermux/pkg/steering"
)

// Smoother applies an exponential moving average to successive merged values.
// It is used only on the broadcast path — query responses stay un-smoothed so
// staleness is always evaluated against the live snapshot. Higher alpha means
// more responsive, less smooth output.
type Smoother struct {
	mu      sync.Mutex
	alpha   float64
	last    float64
	started bool
}

// NewSmoother creates a Smoother with the given alpha in (0, 1].
func NewSmoother(alpha float64) *Smoother {
	return &Smoother{alpha: alpha}
}

// Apply folds v into the moving average and returns the smoothed value,
// clamped to [-1, 1]. The first call returns v unchanged.
func (s *Smoother) Apply(v float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		s.last = v
		s.started = true
		return v
	}
	s.last = steering.Clamp(s.alpha*v + (1-s.alpha)*s.last)
	return s.last
}

// SetAlpha updates the smoothing factor without resetting the average.
func (s *Smoother) SetAlpha(alpha float64) {
	s.mu.Lock()
	s.alpha = alpha
	s.mu.Unlock()
}

// Reset clears the moving average; the next Apply starts fresh.
func (s *Smoother) Reset() {
	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
}
