package merge

import (
	"sort"
	"strings"
	"time"

	"github.com/steermux/steermux/pkg/steering"
	"github.com/steermux/steermux/server/internal/registry"
)

// Weights maps a source ID (or source ID prefix) to its merge weight.
// Weights need not sum to 1; they are renormalized over the sources actually
// present in a snapshot, so a missing source redistributes its share
// proportionally among the rest.
type Weights map[string]float64

// Lookup returns the configured weight for the given source ID and whether
// one was found. An exact key match wins; otherwise the longest configured
// key that is a prefix of id applies, so a "webcam" entry covers "webcam-2".
func (w Weights) Lookup(id string) (float64, bool) {
	if v, ok := w[id]; ok {
		return v, true
	}
	best := ""
	for k := range w {
		if strings.HasPrefix(id, k) && len(k) > len(best) {
			best = k
		}
	}
	if best == "" {
		return 0, false
	}
	return w[best], true
}

// Result is one merged steering computation. It is never mutated in place;
// every merge produces a fresh value.
type Result struct {
	// Value is the merged steering in [-1, 1]. Neutral (0.0) when no
	// source contributes.
	Value float64

	// Sources lists the contributing source IDs in sorted order.
	Sources []string

	// PerSource holds each contributing source's own latest value.
	PerSource map[string]float64

	// ComputedAt is the time the merge ran.
	ComputedAt time.Time
}

// Merge combines a registry snapshot into one steering value using a
// priority-weighted average.
//
// Each source's raw weight comes from w via prefix lookup. Sources with no
// configured weight share the remainder max(0, 1 - sum(configured)) equally.
// Raw weights are then renormalized over exactly the sources present, so a
// single live source always yields its own value unchanged. If every raw
// weight is zero the merge falls back to equal shares. The combined value is
// clamped to [-1, 1] to guard against renormalization rounding.
//
// An empty snapshot yields the fail-safe neutral value with no sources.
func Merge(snapshot []registry.Source, w Weights, now time.Time) Result {
	if len(snapshot) == 0 {
		return Result{
			Value:      steering.Neutral,
			Sources:    []string{},
			PerSource:  map[string]float64{},
			ComputedAt: now,
		}
	}

	// Sort so the computation is independent of map iteration order.
	sorted := make([]registry.Source, len(snapshot))
	copy(sorted, snapshot)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	raw := make([]float64, len(sorted))
	var unknown []int
	configuredSum := 0.0
	for i, s := range sorted {
		if wt, ok := w.Lookup(s.ID); ok {
			raw[i] = wt
			configuredSum += wt
		} else {
			unknown = append(unknown, i)
		}
	}
	if len(unknown) > 0 {
		remainder := 1.0 - configuredSum
		if remainder < 0 {
			remainder = 0
		}
		share := remainder / float64(len(unknown))
		for _, i := range unknown {
			raw[i] = share
		}
	}

	total := 0.0
	for _, wt := range raw {
		total += wt
	}
	if total <= 0 {
		// No usable weights at all — fall back to an equal split so a
		// lone source still reports its own value.
		for i := range raw {
			raw[i] = 1
		}
		total = float64(len(raw))
	}

	value := 0.0
	ids := make([]string, len(sorted))
	perSource := make(map[string]float64, len(sorted))
	for i, s := range sorted {
		value += s.Value * (raw[i] / total)
		ids[i] = s.ID
		perSource[s.ID] = s.Value
	}

	return Result{
		Value:      steering.Clamp(value),
		Sources:    ids,
		PerSource:  perSource,
		ComputedAt: now,
	}
}
