package scan

import (
	"github.com/scandeck/cardscan/internal/detect"
)

// StabilityTracker requires consistent detection across multiple ticks
// before a capture is trusted. It compares each tick's candidate against
// the previous one by Intersection-over-Union and keeps a consecutive-match
// counter.
//
// Not safe for concurrent use; the owning session calls Observe from a
// single goroutine.
type StabilityTracker struct {
	threshold    int
	iouThreshold float64
	matches      int
	last         *detect.Rectangle
}

// NewStabilityTracker returns a tracker that reports full stability after
// threshold consecutive matches at or above the given IoU overlap.
func NewStabilityTracker(threshold int, iouThreshold float64) *StabilityTracker {
	if threshold < 1 {
		threshold = 1
	}
	return &StabilityTracker{threshold: threshold, iouThreshold: iouThreshold}
}

// Observe feeds one tick's candidate (or nil for "no document visible") and
// returns the updated consecutive-match count.
//
// A nil candidate is a stability break: the counter resets to 0 and the
// remembered rectangle is cleared. The first sighting after a break counts
// as a starting point (1), not a match. The remembered rectangle is always
// overwritten with the current candidate regardless of match outcome.
func (t *StabilityTracker) Observe(r *detect.Rectangle) int {
	if r == nil {
		t.matches = 0
		t.last = nil
		return 0
	}

	switch {
	case t.last == nil:
		t.matches = 1
	case detect.IoU(*t.last, *r) > t.iouThreshold:
		t.matches++
	default:
		t.matches = 0
	}
	t.last = r
	return t.matches
}

// Matches returns the current consecutive-match count.
func (t *StabilityTracker) Matches() int { return t.matches }

// Last returns the most recently observed rectangle, or nil after a break.
func (t *StabilityTracker) Last() *detect.Rectangle { return t.last }

// Stable reports whether the match count has reached the threshold.
func (t *StabilityTracker) Stable() bool { return t.matches >= t.threshold }

// Percent returns the normalized stability percentage in [0,100] published
// for UI feedback.
func (t *StabilityTracker) Percent() float64 {
	p := float64(t.matches) / float64(t.threshold)
	if p > 1 {
		p = 1
	}
	return p * 100
}

// Reset clears the counter and the remembered rectangle.
func (t *StabilityTracker) Reset() {
	t.matches = 0
	t.last = nil
}
