package scan

import (
	"errors"
	"image"
	"image/color"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/scandeck/cardscan/internal/capture"
	"github.com/scandeck/cardscan/internal/config"
	"github.com/scandeck/cardscan/internal/detect"
	"github.com/scandeck/cardscan/internal/imaging"
)

var discardLogger = slog.New(slog.NewTextHandler(&discardWriter{}, nil))

type discardWriter struct{}

func (d *discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// cardFrame renders a black card-shaped rectangle on white; the geometry
// lines up with the search grid of testConfig.
func cardFrame() image.Image {
	return regionFrame(20, 20, 168, 96)
}

// wideFrame renders a 3:1 region the aspect gate rejects.
func wideFrame() image.Image {
	return regionFrame(20, 20, 144, 48)
}

// blankFrame is featureless white: no candidate any tick.
func blankFrame() image.Image {
	return regionFrame(0, 0, 0, 0)
}

func regionFrame(x, y, w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 240, 240))
	white := color.RGBA{255, 255, 255, 255}
	black := color.RGBA{A: 255}
	for py := 0; py < 240; py++ {
		for px := 0; px < 240; px++ {
			if px >= x && px < x+w && py >= y && py < y+h {
				img.SetRGBA(px, py, black)
			} else {
				img.SetRGBA(px, py, white)
			}
		}
	}
	return img
}

// fakeSource plays a fixed frame sequence. A nil entry simulates a sampling
// failure; when loop is set the last frame repeats forever.
type fakeSource struct {
	mu      sync.Mutex
	frames  []image.Image
	pos     int
	samples int
	loop    bool
	closed  bool
}

func (s *fakeSource) Sample() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, imaging.ErrSourceEnded
	}
	var f image.Image
	switch {
	case s.pos < len(s.frames):
		f = s.frames[s.pos]
		s.pos++
	case s.loop && len(s.frames) > 0:
		f = s.frames[len(s.frames)-1]
	default:
		return nil, imaging.ErrSourceEnded
	}
	if f == nil {
		return nil, errors.New("camera glitch")
	}
	s.samples++
	return f, nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSource) sampleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples
}

// loopingSource repeats one frame forever.
func loopingSource(f image.Image) *fakeSource {
	return &fakeSource{frames: []image.Image{f}, loop: true}
}

// stepScheduler executes ticks only when the test calls Step, giving the
// tests a deterministic driver in place of a display-refresh callback.
type stepScheduler struct {
	mu      sync.Mutex
	pending []*tickReq
}

type tickReq struct {
	fn        func()
	cancelled bool
}

func (s *stepScheduler) RequestTick(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	req := &tickReq{fn: fn}
	s.pending = append(s.pending, req)
	return func() {
		s.mu.Lock()
		req.cancelled = true
		s.mu.Unlock()
	}
}

// Step runs the next pending, non-cancelled tick and reports whether one ran.
func (s *stepScheduler) Step() bool {
	s.mu.Lock()
	var fn func()
	for len(s.pending) > 0 {
		req := s.pending[0]
		s.pending = s.pending[1:]
		if !req.cancelled {
			fn = req.fn
			break
		}
	}
	s.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

func (s *stepScheduler) StepN(n int) {
	for i := 0; i < n; i++ {
		s.Step()
	}
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.ThrottleFactor = 1
	cfg.SizeStep = 24
	cfg.ConfidenceFloor = 0.2
	cfg.StabilityThreshold = 8
	cfg.SettleDelayMs = 30
	cfg.Enhance = false
	return cfg
}

// captureRecorder collects capture callbacks.
type captureRecorder struct {
	mu     sync.Mutex
	stills []*capture.Still
	ch     chan *capture.Still
}

func newCaptureRecorder() *captureRecorder {
	return &captureRecorder{ch: make(chan *capture.Still, 4)}
}

func (r *captureRecorder) callback(still *capture.Still) {
	r.mu.Lock()
	r.stills = append(r.stills, still)
	r.mu.Unlock()
	r.ch <- still
}

func (r *captureRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stills)
}

func (r *captureRecorder) wait(t *testing.T, timeout time.Duration) *capture.Still {
	t.Helper()
	select {
	case still := <-r.ch:
		return still
	case <-time.After(timeout):
		t.Fatal("timeout waiting for capture")
		return nil
	}
}

func waitForState(t *testing.T, s *Session, want CaptureState, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for state %v (got %v)", want, s.State())
}

func TestSession_StableSequenceFiresSingleCapture(t *testing.T) {
	src := loopingSource(cardFrame())
	sched := &stepScheduler{}
	rec := newCaptureRecorder()

	var lastRect *detect.Rectangle
	var lastPercent float64
	var mu sync.Mutex

	s := NewSession(discardLogger, testConfig(), src, sched, Callbacks{
		Feedback: func(rect *detect.Rectangle, pct float64) {
			mu.Lock()
			lastRect, lastPercent = rect, pct
			mu.Unlock()
		},
		Capture: rec.callback,
	})
	defer s.Close()

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Seven stable ticks: stability climbs but nothing is scheduled yet.
	sched.StepN(7)
	if got := s.ConsecutiveMatches(); got != 7 {
		t.Fatalf("matches after 7 ticks: got %d, want 7", got)
	}
	if got := s.State(); got != StateStabilizing {
		t.Fatalf("state after 7 ticks: got %v, want stabilizing", got)
	}
	mu.Lock()
	if lastRect == nil || lastRect.Stable {
		t.Fatalf("rect before threshold: got %+v, want unstable detection", lastRect)
	}
	if lastPercent != 87.5 {
		t.Errorf("stability percent: got %v, want 87.5", lastPercent)
	}
	mu.Unlock()

	// The eighth tick crosses the threshold and schedules the capture.
	sched.Step()
	if got := s.State(); got != StateScheduled {
		t.Fatalf("state after threshold: got %v, want scheduled", got)
	}
	mu.Lock()
	if lastRect == nil || !lastRect.Stable {
		t.Error("rect must be marked stable on the scheduling tick")
	}
	mu.Unlock()

	// Extra high-stability ticks while the settle timer runs must not
	// schedule a second capture.
	sched.StepN(4)

	still := rec.wait(t, time.Second)
	if still == nil || len(still.PNG) == 0 {
		t.Fatal("capture has no image data")
	}
	if !strings.HasPrefix(still.Filename, "scan-"+s.ID()) {
		t.Errorf("filename hint: got %q", still.Filename)
	}
	if still.Rect == nil || !still.Rect.Stable {
		t.Error("capture must carry the stable rectangle")
	}
	if got := s.State(); got != StateCapturing {
		t.Errorf("state after capture: got %v, want capturing", got)
	}

	// Terminal: further ticks no longer sample the source.
	before := src.sampleCount()
	sched.StepN(3)
	time.Sleep(60 * time.Millisecond)
	if got := src.sampleCount(); got != before {
		t.Errorf("samples after capture: got %d, want %d", got, before)
	}
	if got := rec.count(); got != 1 {
		t.Errorf("capture count: got %d, want exactly 1", got)
	}
}

func TestSession_BlankFrameResetsStability(t *testing.T) {
	frames := []image.Image{
		cardFrame(), cardFrame(), cardFrame(), cardFrame(),
		blankFrame(),
		cardFrame(),
	}
	src := &fakeSource{frames: frames, loop: true}
	sched := &stepScheduler{}
	rec := newCaptureRecorder()

	s := NewSession(discardLogger, testConfig(), src, sched, Callbacks{Capture: rec.callback})
	defer s.Close()
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	sched.StepN(4)
	if got := s.ConsecutiveMatches(); got != 4 {
		t.Fatalf("matches before blank: got %d, want 4", got)
	}

	// The blank frame breaks stability and drops back to idle.
	sched.Step()
	if got := s.ConsecutiveMatches(); got != 0 {
		t.Fatalf("matches after blank: got %d, want 0", got)
	}
	if got := s.State(); got != StateIdle {
		t.Fatalf("state after blank: got %v, want idle", got)
	}

	// A full run of eight consecutive stable ticks is required again.
	sched.StepN(7)
	if got := s.State(); got != StateStabilizing {
		t.Fatalf("state one tick short: got %v, want stabilizing", got)
	}
	if got := rec.count(); got != 0 {
		t.Fatalf("capture before re-stabilization: got %d, want 0", got)
	}

	sched.Step()
	if got := s.State(); got != StateScheduled {
		t.Fatalf("state after re-stabilization: got %v, want scheduled", got)
	}
	rec.wait(t, time.Second)
	if got := rec.count(); got != 1 {
		t.Errorf("capture count: got %d, want 1", got)
	}
}

func TestSession_AspectGateBlocksCaptureForever(t *testing.T) {
	src := loopingSource(wideFrame())
	sched := &stepScheduler{}
	rec := newCaptureRecorder()

	var sawRect bool
	var mu sync.Mutex

	s := NewSession(discardLogger, testConfig(), src, sched, Callbacks{
		Feedback: func(rect *detect.Rectangle, pct float64) {
			if rect != nil {
				mu.Lock()
				sawRect = true
				mu.Unlock()
			}
		},
		Capture: rec.callback,
	})
	defer s.Close()
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	sched.StepN(20)
	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	if sawRect {
		t.Error("3:1 region must never produce a detection")
	}
	mu.Unlock()
	if got := s.ConsecutiveMatches(); got != 0 {
		t.Errorf("matches: got %d, want 0", got)
	}
	if got := s.State(); got != StateIdle {
		t.Errorf("state: got %v, want idle", got)
	}
	if got := rec.count(); got != 0 {
		t.Errorf("captures: got %d, want 0", got)
	}
}

func TestSession_CloseMidScheduledDiscardsCapture(t *testing.T) {
	src := loopingSource(cardFrame())
	sched := &stepScheduler{}
	rec := newCaptureRecorder()

	cfg := testConfig()
	cfg.SettleDelayMs = 50
	s := NewSession(discardLogger, cfg, src, sched, Callbacks{Capture: rec.callback})
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	sched.StepN(8)
	if got := s.State(); got != StateScheduled {
		t.Fatalf("state: got %v, want scheduled", got)
	}

	// Teardown before the settle delay elapses.
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	time.Sleep(120 * time.Millisecond)
	if got := rec.count(); got != 0 {
		t.Errorf("captures after close: got %d, want 0", got)
	}

	// No further pipeline work after teardown.
	before := src.sampleCount()
	sched.StepN(3)
	if got := src.sampleCount(); got != before {
		t.Errorf("samples after close: got %d, want %d", got, before)
	}
}

func TestSession_CaptureFrameUnavailableFallsBack(t *testing.T) {
	// Eight good frames schedule the capture, then the source glitches so
	// no frame is available when the settle timer fires.
	frames := make([]image.Image, 0, 9)
	for i := 0; i < 8; i++ {
		frames = append(frames, cardFrame())
	}
	frames = append(frames, nil)
	src := &fakeSource{frames: frames, loop: true}
	sched := &stepScheduler{}
	rec := newCaptureRecorder()

	s := NewSession(discardLogger, testConfig(), src, sched, Callbacks{Capture: rec.callback})
	defer s.Close()
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	sched.StepN(8)
	if got := s.State(); got != StateScheduled {
		t.Fatalf("state: got %v, want scheduled", got)
	}

	// The glitch tick clears the retained frame before the timer fires.
	sched.Step()

	waitForState(t, s, StateIdle, time.Second)
	if got := rec.count(); got != 0 {
		t.Errorf("captures: got %d, want 0", got)
	}
}

func TestSession_SourceEndStopsCleanly(t *testing.T) {
	src := &fakeSource{frames: []image.Image{cardFrame(), cardFrame(), cardFrame()}}
	sched := &stepScheduler{}

	var stoppedReason string
	var mu sync.Mutex

	s := NewSession(discardLogger, testConfig(), src, sched, Callbacks{
		Stopped: func(reason string) {
			mu.Lock()
			stoppedReason = reason
			mu.Unlock()
		},
	})
	defer s.Close()
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	sched.StepN(4) // fourth tick hits the end of the source

	mu.Lock()
	if stoppedReason != "source ended" {
		t.Errorf("stopped reason: got %q, want %q", stoppedReason, "source ended")
	}
	mu.Unlock()

	// No further ticks are scheduled once the loop stopped.
	if sched.Step() {
		t.Error("a tick was still pending after the source ended")
	}
	if got := src.sampleCount(); got != 3 {
		t.Errorf("samples: got %d, want 3", got)
	}
}

func TestSession_ThrottleSkipsTicks(t *testing.T) {
	src := loopingSource(cardFrame())
	sched := &stepScheduler{}

	cfg := testConfig()
	cfg.ThrottleFactor = 3
	s := NewSession(discardLogger, cfg, src, sched, Callbacks{})
	defer s.Close()
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	sched.StepN(6)
	if got := src.sampleCount(); got != 2 {
		t.Errorf("samples over 6 ticks at throttle 3: got %d, want 2", got)
	}
}

func TestSession_ResetRearmsAfterCapture(t *testing.T) {
	src := loopingSource(cardFrame())
	sched := &stepScheduler{}
	rec := newCaptureRecorder()

	cfg := testConfig()
	cfg.StabilityThreshold = 2
	cfg.SettleDelayMs = 5
	s := NewSession(discardLogger, cfg, src, sched, Callbacks{Capture: rec.callback})
	defer s.Close()
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	sched.StepN(2)
	rec.wait(t, time.Second)
	if got := s.State(); got != StateCapturing {
		t.Fatalf("state after capture: got %v, want capturing", got)
	}

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if got := s.State(); got != StateIdle {
		t.Fatalf("state after reset: got %v, want idle", got)
	}
	if got := s.ConsecutiveMatches(); got != 0 {
		t.Fatalf("matches after reset: got %d, want 0", got)
	}

	// The session scans again from scratch.
	sched.StepN(2)
	rec.wait(t, time.Second)
	if got := rec.count(); got != 2 {
		t.Errorf("captures after reset cycle: got %d, want 2", got)
	}
}

func TestSession_LifecycleErrors(t *testing.T) {
	src := loopingSource(cardFrame())
	s := NewSession(discardLogger, testConfig(), src, &stepScheduler{}, Callbacks{})

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Errorf("second Start: got %v, want nil no-op", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: got %v, want nil", err)
	}

	if err := s.Start(); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Start after Close: got %v, want ErrSessionClosed", err)
	}
	if err := s.Reset(); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Reset after Close: got %v, want ErrSessionClosed", err)
	}
}

func TestSession_StateTransitionsAreObserved(t *testing.T) {
	src := loopingSource(cardFrame())
	sched := &stepScheduler{}
	rec := newCaptureRecorder()

	var mu sync.Mutex
	var seq []CaptureState

	cfg := testConfig()
	cfg.StabilityThreshold = 2
	cfg.SettleDelayMs = 5
	s := NewSession(discardLogger, cfg, src, sched, Callbacks{
		Capture: rec.callback,
		State: func(prev, next CaptureState) {
			mu.Lock()
			seq = append(seq, next)
			mu.Unlock()
		},
	})
	defer s.Close()
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	sched.StepN(2)
	rec.wait(t, time.Second)

	mu.Lock()
	defer mu.Unlock()
	want := []CaptureState{StateStabilizing, StateScheduled, StateCapturing}
	if len(seq) != len(want) {
		t.Fatalf("transition sequence: got %v, want %v", seq, want)
	}
	for i := range want {
		if seq[i] != want[i] {
			t.Fatalf("transition %d: got %v, want %v (full: %v)", i, seq[i], want[i], seq)
		}
	}
}
