// Package overlay defines the UI feedback contract of the scanning
// pipeline: a per-tick Feedback value carrying the detected rectangle, the
// stability percentage, a guidance string and a feedback colour. Rendering
// is out of scope; an overlay renderer subscribes to a Publisher and draws
// whatever it receives.
package overlay

import (
	"sync"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/scandeck/cardscan/internal/detect"
)

// minCloseArea is the normalized area below which the card is considered
// too far away for a legible capture.
const minCloseArea = 0.12

// Feedback is one tick's worth of overlay state.
type Feedback struct {
	// Rect is the current candidate, nil when no document is visible.
	Rect *detect.Rectangle `json:"rect,omitempty"`

	// Stability is the normalized stability percentage in [0,100].
	Stability float64 `json:"stability"`

	// Guidance is a short instruction for the user.
	Guidance string `json:"guidance"`

	// Color is the feedback colour as a hex string, blended from red at
	// 0% stability to green at 100%.
	Color string `json:"color"`
}

// Listener receives each published Feedback value.
type Listener func(Feedback)

// Publisher fans per-tick detection results out to overlay listeners.
// Safe for concurrent use.
type Publisher struct {
	mu        sync.Mutex
	listeners []Listener
}

// NewPublisher returns an empty publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Subscribe registers a listener for subsequent publishes.
func (p *Publisher) Subscribe(l Listener) {
	p.mu.Lock()
	p.listeners = append(p.listeners, l)
	p.mu.Unlock()
}

// Publish derives a Feedback value from the tick result and delivers it to
// every listener. Wire it as the session's Feedback callback.
func (p *Publisher) Publish(rect *detect.Rectangle, stability float64) {
	fb := Feedback{
		Rect:      rect,
		Stability: stability,
		Guidance:  Guidance(rect, stability),
		Color:     StabilityColor(stability).Hex(),
	}

	p.mu.Lock()
	listeners := make([]Listener, len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.Unlock()

	for _, l := range listeners {
		l(fb)
	}
}

// StabilityColor blends red (0%) to green (100%) in Lab space, which keeps
// the midpoint perceptually amber rather than muddy RGB brown.
func StabilityColor(stability float64) colorful.Color {
	t := stability / 100
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	red := colorful.Color{R: 0.86, G: 0.20, B: 0.18}
	green := colorful.Color{R: 0.20, G: 0.78, B: 0.35}
	return red.BlendLab(green, t).Clamped()
}

// Guidance maps the detection state to a short user instruction.
func Guidance(rect *detect.Rectangle, stability float64) string {
	switch {
	case rect == nil:
		return "align the card inside the frame"
	case rect.Stable:
		return "captured"
	case rect.Area() < minCloseArea:
		return "move closer"
	case stability < 100:
		return "hold steady"
	default:
		return "hold steady"
	}
}
