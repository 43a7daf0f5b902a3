package signal

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"
)

func TestForPattern_SineBoundsAndShape(t *testing.T) {
	w, err := ForPattern("sine", 0.8, 4*time.Second)
	if err != nil {
		t.Fatalf("ForPattern: %v", err)
	}

	for d := time.Duration(0); d < 8*time.Second; d += 100 * time.Millisecond {
		v := w(d)
		if v < -0.8-1e-9 || v > 0.8+1e-9 {
			t.Fatalf("sine(%v) = %v, outside ±0.8", d, v)
		}
	}

	// Quarter period is the positive peak.
	if v := w(time.Second); math.Abs(v-0.8) > 1e-9 {
		t.Errorf("sine at quarter period: got %v, want 0.8", v)
	}
	if v := w(0); math.Abs(v) > 1e-9 {
		t.Errorf("sine at start: got %v, want 0", v)
	}
}

func TestForPattern_SweepHitsExtremes(t *testing.T) {
	w, err := ForPattern("sweep", 1.0, 4*time.Second)
	if err != nil {
		t.Fatalf("ForPattern: %v", err)
	}

	if v := w(0); math.Abs(v) > 1e-9 {
		t.Errorf("sweep at start: got %v, want 0", v)
	}
	if v := w(time.Second); math.Abs(v-1.0) > 1e-9 {
		t.Errorf("sweep at quarter period: got %v, want 1.0", v)
	}
	if v := w(3 * time.Second); math.Abs(v+1.0) > 1e-9 {
		t.Errorf("sweep at three quarters: got %v, want -1.0", v)
	}
	// Periodic.
	if a, b := w(500*time.Millisecond), w(4500*time.Millisecond); math.Abs(a-b) > 1e-9 {
		t.Errorf("sweep not periodic: %v vs %v", a, b)
	}
}

func TestForPattern_Center(t *testing.T) {
	w, err := ForPattern("center", 1.0, time.Second)
	if err != nil {
		t.Fatalf("ForPattern: %v", err)
	}
	if v := w(17 * time.Second); v != 0.0 {
		t.Errorf("center: got %v, want 0.0", v)
	}
}

func TestForPattern_Unknown(t *testing.T) {
	if _, err := ForPattern("stdin", 1.0, time.Second); err == nil {
		t.Error("ForPattern(stdin): expected error (stdin has no waveform)")
	}
}

func TestRun_EmitsAtRate(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	w, _ := ForPattern("center", 1.0, time.Second)
	var count int
	Run(ctx, w, 100, func(float64) { count++ })

	// 100 Hz over ~300ms — allow generous slop for CI schedulers.
	if count < 10 {
		t.Errorf("emitted %d samples, want at least 10", count)
	}
}

func TestReadLines(t *testing.T) {
	input := strings.NewReader("0.5\n\nnot-a-number\n-2.0\nNaN\n 0.25 \n")

	var got []float64
	err := ReadLines(context.Background(), input, func(v float64) { got = append(got, v) })
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}

	want := []float64{0.5, -1.0, 0.25} // -2.0 clamps, NaN and junk dropped
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("value %d: got %v, want %v", i, got[i], want[i])
		}
	}
}
