// Package smoother derives speed from distance over time across a trailing window of fixes.
// It is independent of the Kalman estimate and serves as its cross-check.
package smoother

import (
	"time"

	"github.com/rotblauer/velofuse/types/sample"
)

// Windowed keeps the last smoothed speed so that sparse windows never regress it to zero.
type Windowed struct {
	Window time.Duration
	last   float64
}

func NewWindowed(window time.Duration) *Windowed {
	return &Windowed{Window: window}
}

// Last returns the most recently computed smoothed speed, m/s.
func (w *Windowed) Last() float64 {
	return w.last
}

func (w *Windowed) Reset() {
	w.last = 0
}

// Update recomputes the smoothed speed over history (oldest first).
// The window trails the newest fix in history, not the wall clock, so replays and
// live sessions agree.
// With fewer than two fixes in the window, or no elapsed time, the previous value is returned.
func (w *Windowed) Update(history []sample.GeoSample) float64 {
	if len(history) < 2 {
		return w.last
	}
	newest := history[len(history)-1]
	windowMs := w.Window.Milliseconds()

	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		age := int64(newest.TimestampMs) - int64(history[i].TimestampMs)
		if age >= windowMs {
			break
		}
		start = i
	}
	recent := history[start:]
	if len(recent) < 2 {
		return w.last
	}

	distance := 0.0
	for i := 1; i < len(recent); i++ {
		distance += recent[i-1].DistanceTo(recent[i])
	}
	elapsed := recent[len(recent)-1].SecondsSince(recent[0])
	if elapsed <= 0 {
		return w.last
	}
	w.last = distance / elapsed
	return w.last
}
