package scan

import "time"

// Scheduler re-registers the scanning loop for its next tick. It models a
// display-refresh callback: one tick per request, and the returned cancel
// function discards a pending tick that has not fired yet.
//
// The indirection exists so tests can swap in a deterministic driver and
// feed synthetic frames at controlled ticks without a real display or
// camera.
type Scheduler interface {
	RequestTick(fn func()) (cancel func())
}

// TickerScheduler schedules ticks on a fixed wall-clock interval, standing
// in for a display-refresh callback on headless hosts.
type TickerScheduler struct {
	Interval time.Duration
}

// NewTickerScheduler returns a scheduler ticking at the given interval.
// A non-positive interval falls back to 16ms (one refresh at 60Hz).
func NewTickerScheduler(interval time.Duration) *TickerScheduler {
	return &TickerScheduler{Interval: interval}
}

// RequestTick arms a one-shot timer for the next tick.
func (s *TickerScheduler) RequestTick(fn func()) func() {
	interval := s.Interval
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	t := time.AfterFunc(interval, fn)
	return func() { t.Stop() }
}
