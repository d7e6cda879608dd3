package scan

import (
	"errors"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scandeck/cardscan/internal/capture"
	"github.com/scandeck/cardscan/internal/config"
	"github.com/scandeck/cardscan/internal/detect"
	"github.com/scandeck/cardscan/internal/imaging"
)

// Session owns one scanning attempt: the throttled tick loop, the mutable
// stability/capture state, and the settle timer. The state pair is owned
// exclusively by the session for its lifetime; external components only
// observe it through the callbacks and accessors.
//
// All per-tick failures are absorbed as "no detection this tick" - nothing
// escapes the loop, since a crash would strand the camera resource open.
type Session struct {
	mu sync.Mutex

	id     string
	logger *slog.Logger
	cfg    *config.Config
	source imaging.FrameSource
	sched  Scheduler
	cb     Callbacks
	search detect.SearchParams

	tickCount  int
	cancelTick func()
	running    bool
	closed     bool

	state    CaptureState
	stab     *StabilityTracker
	lastFull image.Image
	settle   *time.Timer
}

// NewSession constructs a session over the given source and scheduler.
// A nil cfg selects config.DefaultConfig(); a nil logger disables logging.
func NewSession(logger *slog.Logger, cfg *config.Config, source imaging.FrameSource, sched Scheduler, cb Callbacks) *Session {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Session{
		id:     uuid.NewString(),
		logger: logger,
		cfg:    cfg,
		source: source,
		sched:  sched,
		cb:     cb,
		search: detect.SearchParams{
			OriginFraction:    cfg.OriginFraction,
			MinWidthFraction:  cfg.MinWidthFraction,
			MaxWidthFraction:  cfg.MaxWidthFraction,
			MinHeightFraction: cfg.MinHeightFraction,
			MaxHeightFraction: cfg.MaxHeightFraction,
			PositionStep:      cfg.PositionStep,
			SizeStep:          cfg.SizeStep,
			MinAspect:         cfg.MinAspect,
			MaxAspect:         cfg.MaxAspect,
			ConfidenceFloor:   cfg.ConfidenceFloor,
		},
		state: StateIdle,
		stab:  NewStabilityTracker(cfg.StabilityThreshold, cfg.IoUThreshold),
	}
}

// ID returns the session identifier used in capture filename hints.
func (s *Session) ID() string { return s.id }

// State returns the current capture state.
func (s *Session) State() CaptureState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConsecutiveMatches returns the stability tracker's current match count.
func (s *Session) ConsecutiveMatches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stab.Matches()
}

// StabilityPercent returns the published stability percentage in [0,100].
func (s *Session) StabilityPercent() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stab.Percent()
}

// Start begins scheduling ticks. Calling Start on a running session is a
// no-op; starting a closed session returns ErrSessionClosed.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.running {
		return nil
	}
	s.running = true
	s.cancelTick = s.sched.RequestTick(s.tick)
	if s.logger != nil {
		s.logger.Info("scan session started", "session", s.id,
			"throttle", s.cfg.ThrottleFactor, "stabilityThreshold", s.cfg.StabilityThreshold)
	}
	return nil
}

// Close tears the session down: it stops further ticks, discards any
// pending settle timer and releases the frame source, all under one lock
// so a stale delayed capture can never fire against a closed session.
// Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.running = false
	if s.cancelTick != nil {
		s.cancelTick()
		s.cancelTick = nil
	}
	if s.settle != nil {
		s.settle.Stop()
		s.settle = nil
	}
	s.lastFull = nil
	src := s.source
	stopped := s.cb.Stopped
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("scan session closed", "session", s.id)
	}
	if stopped != nil {
		stopped("session closed")
	}
	if src != nil {
		return src.Close()
	}
	return nil
}

// Reset re-arms the session for a new scan after Capturing (upload
// completed or failed, modal reopened). Stability state is cleared and the
// state machine returns to Idle. Returns ErrSessionClosed after Close.
func (s *Session) Reset() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.settle != nil {
		s.settle.Stop()
		s.settle = nil
	}
	s.stab.Reset()
	s.lastFull = nil
	var n notices
	if s.state != StateIdle {
		s.transitionLocked(StateIdle, &n)
	}
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("scan session reset", "session", s.id)
	}
	n.deliver(s.cb)
	return nil
}

// tick is the cooperative loop body. It executes the full pipeline every
// Nth tick (throttle factor) and re-registers itself for the next tick.
func (s *Session) tick() {
	s.mu.Lock()
	if s.closed || !s.running {
		s.mu.Unlock()
		return
	}
	s.tickCount++

	var n notices
	throttle := s.cfg.ThrottleFactor
	if throttle <= 1 || s.tickCount%throttle == 0 {
		s.runPipelineLocked(&n)
	}

	if s.running && !s.closed {
		s.cancelTick = s.sched.RequestTick(s.tick)
	}
	s.mu.Unlock()

	n.deliver(s.cb)
}

// runPipelineLocked executes one full analysis pass: sample, edge map,
// candidate search, stability tracking, trigger. Caller holds s.mu.
func (s *Session) runPipelineLocked(n *notices) {
	// Terminal until an explicit reset; frames are ignored.
	if s.state == StateCapturing {
		return
	}

	img, err := s.source.Sample()
	if err != nil {
		if errors.Is(err, imaging.ErrSourceEnded) {
			s.running = false
			s.lastFull = nil
			n.setStopped("source ended")
			if s.logger != nil {
				s.logger.Info("frame source ended", "session", s.id, "ticks", s.tickCount)
			}
			return
		}
		// Absorbed: surfaces only as "no detection this tick".
		s.lastFull = nil
		s.stab.Observe(nil)
		if s.state == StateStabilizing {
			s.transitionLocked(StateIdle, n)
		}
		n.setFeedback(nil, s.stab.Percent())
		if s.logger != nil {
			s.logger.Debug("frame sample failed", "session", s.id, "error", err)
		}
		return
	}
	s.lastFull = img

	working := imaging.Downscale(img, s.cfg.MaxWorkingWidth)
	if s.cfg.Blur {
		working = imaging.Blur(working, float32(s.cfg.BlurSigma))
	}
	frame := imaging.NewFrame(working)
	edges := imaging.BuildEdgeMap(frame, s.cfg.EdgeThreshold)
	rect := detect.FindRectangle(edges, s.search)

	matches := s.stab.Observe(rect)

	switch {
	case rect == nil:
		if s.state == StateStabilizing {
			s.transitionLocked(StateIdle, n)
		}
	case s.state == StateIdle:
		s.transitionLocked(StateStabilizing, n)
	}

	if rect != nil && matches >= s.cfg.StabilityThreshold {
		rect.Stable = true
		if s.state == StateIdle || s.state == StateStabilizing {
			s.transitionLocked(StateScheduled, n)
			s.settle = time.AfterFunc(s.cfg.SettleDelay(), s.fireCapture)
			if s.logger != nil {
				s.logger.Info("capture scheduled", "session", s.id,
					"matches", matches, "settleMs", s.cfg.SettleDelayMs,
					"confidence", rect.Confidence)
			}
		}
	}

	n.setFeedback(rect, s.stab.Percent())
}

// fireCapture runs when the settle delay elapses. It freezes the most
// recent sampled frame and hands it off; if no frame is available the
// machine falls back instead of wedging in Capturing.
func (s *Session) fireCapture() {
	s.mu.Lock()
	if s.closed || s.state != StateScheduled {
		s.mu.Unlock()
		return
	}

	var n notices
	frame := s.lastFull
	if frame == nil {
		s.fallbackLocked(&n)
		s.mu.Unlock()
		if s.logger != nil {
			s.logger.Warn("capture frame unavailable, falling back", "session", s.id)
		}
		n.deliver(s.cb)
		return
	}

	s.transitionLocked(StateCapturing, &n)
	still, err := capture.Freeze(frame, s.stab.Last(), s.id, time.Now(), capture.Options{
		Enhance:  s.cfg.Enhance,
		Contrast: s.cfg.Contrast,
	})
	if err != nil {
		s.fallbackLocked(&n)
		s.mu.Unlock()
		if s.logger != nil {
			s.logger.Error("capture failed, falling back", "session", s.id, "error", err)
		}
		n.deliver(s.cb)
		return
	}
	n.still = still
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("capture fired", "session", s.id, "filename", still.Filename)
	}
	n.deliver(s.cb)
}

// fallbackLocked leaves a failed capture attempt in Stabilizing when a
// candidate is still tracked, otherwise Idle. Caller holds s.mu.
func (s *Session) fallbackLocked(n *notices) {
	if s.stab.Matches() > 0 {
		s.transitionLocked(StateStabilizing, n)
	} else {
		s.transitionLocked(StateIdle, n)
	}
}

func (s *Session) transitionLocked(next CaptureState, n *notices) {
	if s.state == next {
		return
	}
	prev := s.state
	s.state = next
	if s.logger != nil {
		s.logger.Debug("capture state transition", "session", s.id,
			"from", prev.String(), "to", next.String())
	}
	n.transitions = append(n.transitions, statePair{prev: prev, next: next})
}

// notices accumulates callback payloads while the session lock is held so
// they can be delivered lock-free afterwards.
type statePair struct {
	prev, next CaptureState
}

type notices struct {
	transitions []statePair
	hasFeedback bool
	rect        *detect.Rectangle
	percent     float64
	still       *capture.Still
	stopped     string
	hasStopped  bool
}

func (n *notices) setFeedback(rect *detect.Rectangle, percent float64) {
	n.hasFeedback = true
	n.rect = rect
	n.percent = percent
}

func (n *notices) setStopped(reason string) {
	n.hasStopped = true
	n.stopped = reason
}

func (n *notices) deliver(cb Callbacks) {
	if cb.State != nil {
		for _, t := range n.transitions {
			cb.State(t.prev, t.next)
		}
	}
	if n.hasFeedback && cb.Feedback != nil {
		cb.Feedback(n.rect, n.percent)
	}
	if n.still != nil && cb.Capture != nil {
		cb.Capture(n.still)
	}
	if n.hasStopped && cb.Stopped != nil {
		cb.Stopped(n.stopped)
	}
}
