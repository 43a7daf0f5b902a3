package signal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/steermux/steermux/pkg/steering"
)

// Waveform maps elapsed time since start to a steering value in [-1, 1].
type Waveform func(elapsed time.Duration) float64

// ForPattern returns the Waveform for a generated pattern. The "stdin"
// pattern has no waveform; use ReadLines instead.
func ForPattern(pattern string, amplitude float64, period time.Duration) (Waveform, error) {
	switch pattern {
	case "sine":
		return func(elapsed time.Duration) float64 {
			phase := 2 * math.Pi * float64(elapsed) / float64(period)
			return steering.Clamp(amplitude * math.Sin(phase))
		}, nil

	case "sweep":
		// Triangle wave: full left to full right and back each period.
		return func(elapsed time.Duration) float64 {
			frac := math.Mod(float64(elapsed)/float64(period), 1)
			tri := 4 * frac // 0..4 over one cycle
			switch {
			case tri < 1:
				return steering.Clamp(amplitude * tri)
			case tri < 3:
				return steering.Clamp(amplitude * (2 - tri))
			default:
				return steering.Clamp(amplitude * (tri - 4))
			}
		}, nil

	case "center":
		return func(time.Duration) float64 { return steering.Neutral }, nil

	default:
		return nil, fmt.Errorf("signal: no waveform for pattern %q", pattern)
	}
}

// Run emits one waveform sample per tick at rateHz until ctx is cancelled.
func Run(ctx context.Context, w Waveform, rateHz int, emit func(float64)) {
	interval := time.Duration(float64(time.Second) / float64(rateHz))
	start := time.Now()

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			emit(w(now.Sub(start)))
		}
	}
}

// ReadLines reads one steering value per line from r and emits each valid
// one, clamped. Blank lines and unparseable lines are skipped with a
// diagnostic. Returns when r is exhausted or ctx is cancelled.
func ReadLines(ctx context.Context, r io.Reader, emit func(float64)) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil || !steering.Valid(v) {
			slog.Warn("signal: skipping unparseable line", "line", line)
			continue
		}
		emit(steering.Clamp(v))
	}
	return scanner.Err()
}
