package steering

import "math"

// Neutral is the fail-safe steering value reported when no live source exists.
const Neutral = 0.0

// Sample is one inbound steering frame as sent by a producer.
// Full left is -1.0, full right is +1.0.
type Sample struct {
	// Source identifies the producer, e.g. "webcam" or "phone".
	Source string `json:"source"`

	// Steering is the raw steering value. Values outside [-1, 1] are
	// clamped by the receiver; NaN and infinities are rejected.
	Steering float64 `json:"steering"`
}

// Clamp restricts v to the range [-1, 1].
func Clamp(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

// Valid reports whether v is a usable steering value. NaN and infinite
// values are not; out-of-range finite values are (they get clamped).
func Valid(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
