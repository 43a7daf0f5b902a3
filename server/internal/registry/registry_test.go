package registry

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"
)

// fixedClock returns a func() time.Time that always returns t.
func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestUpsertAndGet(t *testing.T) {
	r := New(2*time.Second, 30*time.Second)
	if !r.Upsert("webcam", 0.5) {
		t.Fatal("Upsert: expected true for valid value")
	}

	s, ok := r.Get("webcam")
	if !ok {
		t.Fatal("Get: expected entry, got none")
	}
	if s.Value != 0.5 {
		t.Errorf("Value: got %v, want 0.5", s.Value)
	}
	if !s.Connected {
		t.Error("Connected: got false, want true")
	}
}

func TestGet_Missing(t *testing.T) {
	r := New(2*time.Second, 30*time.Second)
	_, ok := r.Get("unknown")
	if ok {
		t.Fatal("Get on empty registry: expected false, got true")
	}
}

func TestUpsert_Overwrites(t *testing.T) {
	r := New(2*time.Second, 30*time.Second)
	r.Upsert("phone", 0.1)
	r.Upsert("phone", -0.3)

	s, _ := r.Get("phone")
	if s.Value != -0.3 {
		t.Errorf("Value: got %v, want -0.3", s.Value)
	}
	if r.Count() != 1 {
		t.Errorf("Count: got %d, want 1", r.Count())
	}
}

func TestUpsert_Clamps(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{1.5, 1.0},
		{-2.0, -1.0},
		{0.25, 0.25},
		{1.0, 1.0},
		{-1.0, -1.0},
	}
	r := New(2*time.Second, 30*time.Second)
	for _, tc := range tests {
		r.Upsert("src", tc.in)
		s, _ := r.Get("src")
		if s.Value != tc.want {
			t.Errorf("Upsert(%v): stored %v, want %v", tc.in, s.Value, tc.want)
		}
	}
}

func TestUpsert_RejectsNonFinite(t *testing.T) {
	r := New(2*time.Second, 30*time.Second)
	r.Upsert("src", 0.4)

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if r.Upsert("src", v) {
			t.Errorf("Upsert(%v): got true, want false", v)
		}
	}

	// Prior state must be retained.
	s, ok := r.Get("src")
	if !ok || s.Value != 0.4 {
		t.Errorf("after rejected upserts: got (%v, %v), want (0.4, true)", s.Value, ok)
	}
}

func TestUpsert_RejectedValueCreatesNoEntry(t *testing.T) {
	r := New(2*time.Second, 30*time.Second)
	r.Upsert("ghost", math.NaN())
	if _, ok := r.Get("ghost"); ok {
		t.Error("rejected first sample must not create an entry")
	}
}

func TestSnapshot_IncludesFreshUpsert(t *testing.T) {
	base := time.Now()
	r := New(2*time.Second, 30*time.Second)
	r.now = fixedClock(base)

	r.Upsert("webcam", 0.7)

	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Snapshot: got %d entries, want 1", len(snap))
	}
	if snap[0].ID != "webcam" || snap[0].Value != 0.7 {
		t.Errorf("Snapshot[0]: got %+v", snap[0])
	}
}

func TestSnapshot_ExcludesStale(t *testing.T) {
	base := time.Now()
	r := New(2*time.Second, 30*time.Second)

	r.now = fixedClock(base.Add(-5 * time.Second)) // stale
	r.Upsert("old", 0.9)

	r.now = fixedClock(base) // live
	r.Upsert("new", -0.2)

	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Snapshot: got %d entries, want 1", len(snap))
	}
	if snap[0].ID != "new" {
		t.Errorf("Snapshot[0].ID: got %q, want new", snap[0].ID)
	}
}

func TestStaleRetainedUntilEviction(t *testing.T) {
	base := time.Now()
	r := New(2*time.Second, 30*time.Second)

	r.now = fixedClock(base.Add(-10 * time.Second))
	r.Upsert("flaky", 0.3)
	r.now = fixedClock(base)

	// Stale: excluded from Snapshot but still held.
	if len(r.Snapshot()) != 0 {
		t.Error("Snapshot: stale entry should be excluded")
	}
	if r.Count() != 1 {
		t.Errorf("Count: got %d, want 1 (stale but not evicted)", r.Count())
	}
	if _, ok := r.Get("flaky"); !ok {
		t.Error("Get: stale entry should still be present")
	}

	// Within the eviction window nothing is removed.
	if n := r.Evict(base); n != 0 {
		t.Errorf("Evict before window: removed %d, want 0", n)
	}

	// Past the eviction window the entry is purged entirely.
	if n := r.Evict(base.Add(25 * time.Second)); n != 1 {
		t.Errorf("Evict after window: removed %d, want 1", n)
	}
	if _, ok := r.Get("flaky"); ok {
		t.Error("Get after eviction: entry should be gone")
	}
}

func TestStats(t *testing.T) {
	base := time.Now()
	r := New(2*time.Second, 30*time.Second)

	r.now = fixedClock(base.Add(-5 * time.Second))
	r.Upsert("old", 0.0)

	r.now = fixedClock(base)
	r.Upsert("a", 0.1)
	r.Upsert("b", 0.2)

	live, stale := r.Stats()
	if live != 2 || stale != 1 {
		t.Errorf("Stats: got live=%d stale=%d, want 2/1", live, stale)
	}
}

func TestMarkDisconnected_RetainsEntry(t *testing.T) {
	r := New(2*time.Second, 30*time.Second)
	r.Upsert("phone", 0.5)
	r.MarkDisconnected("phone")

	s, ok := r.Get("phone")
	if !ok {
		t.Fatal("Get: entry must survive disconnect")
	}
	if s.Connected {
		t.Error("Connected: got true after MarkDisconnected")
	}
	if s.Value != 0.5 {
		t.Errorf("Value: got %v, want 0.5", s.Value)
	}

	// Still contributes while fresh.
	if len(r.Snapshot()) != 1 {
		t.Error("Snapshot: disconnected-but-fresh source should contribute")
	}
}

func TestMarkDisconnected_UnknownID(t *testing.T) {
	r := New(2*time.Second, 30*time.Second)
	r.MarkDisconnected("never-seen") // must not panic or create an entry
	if r.Count() != 0 {
		t.Errorf("Count: got %d, want 0", r.Count())
	}
}

func TestRemove_Idempotent(t *testing.T) {
	r := New(2*time.Second, 30*time.Second)
	r.Upsert("src", 0.1)
	r.Remove("src")
	r.Remove("src")
	if r.Count() != 0 {
		t.Errorf("Count: got %d, want 0", r.Count())
	}
}

func TestConcurrentUpserts_DistinctSources(t *testing.T) {
	r := New(2*time.Second, 30*time.Second)
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			r.Upsert("webcam", float64(n%10)/10)
		}(i)
		go func(n int) {
			defer wg.Done()
			r.Upsert("phone", -float64(n%10)/10)
		}(i)
	}
	wg.Wait()

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot after concurrent upserts: got %d entries, want 2", len(snap))
	}
	for _, s := range snap {
		if s.Value < -1 || s.Value > 1 {
			t.Errorf("source %q: value %v out of range", s.ID, s.Value)
		}
	}
}

func TestConcurrentMixedOps(t *testing.T) {
	r := New(2*time.Second, 30*time.Second)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(4)
		go func(n int) {
			defer wg.Done()
			r.Upsert(fmt.Sprintf("src-%d", n%5), 0.5)
		}(i)
		go func() {
			defer wg.Done()
			r.Snapshot()
		}()
		go func() {
			defer wg.Done()
			r.Stats()
		}()
		go func(n int) {
			defer wg.Done()
			r.MarkDisconnected(fmt.Sprintf("src-%d", n%5))
		}(i)
	}
	wg.Wait()
}
