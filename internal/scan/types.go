package scan

import (
	"errors"

	"github.com/scandeck/cardscan/internal/capture"
	"github.com/scandeck/cardscan/internal/detect"
)

// ErrSessionClosed is returned by operations on a session after Close.
var ErrSessionClosed = errors.New("scan session closed")

// CaptureState enumerates the capture trigger state machine.
type CaptureState int

const (
	// StateIdle means no document is currently tracked.
	StateIdle CaptureState = iota

	// StateStabilizing means a candidate is tracked but has not yet
	// persisted long enough to trust.
	StateStabilizing

	// StateScheduled means the stability threshold was reached and a
	// one-shot capture is armed behind the settle delay.
	StateScheduled

	// StateCapturing means the frame was frozen and handed off. Terminal
	// for the session until an explicit Reset.
	StateCapturing
)

func (s CaptureState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStabilizing:
		return "stabilizing"
	case StateScheduled:
		return "scheduled"
	case StateCapturing:
		return "capturing"
	default:
		return "unknown"
	}
}

// StateListener is called on each capture state transition.
type StateListener func(prev, next CaptureState)

// Callbacks externalize the session's outputs. All callbacks are optional
// and are invoked from the scanning goroutine (or the settle timer
// goroutine for Capture) with no session lock held, so they may call back
// into the session.
type Callbacks struct {
	// Feedback receives the per-tick detection result for overlay
	// rendering: the current rectangle (nil when no document is visible)
	// and the stability percentage in [0,100].
	Feedback func(rect *detect.Rectangle, stabilityPercent float64)

	// Capture receives the single still produced when the trigger fires.
	Capture func(still *capture.Still)

	// State is notified of every capture state transition.
	State StateListener

	// Stopped is notified once when the loop stops scheduling further
	// ticks (source ended or session closed), with a short reason.
	Stopped func(reason string)
}
