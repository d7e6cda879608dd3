// Package capture turns a frozen full-resolution frame into the still image
// handed to the external upload collaborator.
//
// At capture time the most recent sampled frame is cropped to the detected
// rectangle (denormalized to full-resolution coordinates and clamped to the
// frame bounds), optionally enhanced for downstream legibility, and encoded
// as PNG together with a filename hint. Nothing in this package talks to
// the collaborator itself; see the upload package for that contract.
package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"time"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"

	"github.com/scandeck/cardscan/internal/detect"
)

// ErrNoFrame is returned by Freeze when there is no frame to capture
// (source paused or ended before the settle delay elapsed).
var ErrNoFrame = errors.New("no frame available to capture")

// Still is the single capture artifact of a scanning session.
type Still struct {
	// SessionID identifies the scanning session that produced the still.
	SessionID string `json:"session_id"`

	// Filename is the hint passed to the upload collaborator, of the form
	// scan-<sessionID>-<unix>.png.
	Filename string `json:"filename"`

	// TakenAt is the capture instant.
	TakenAt time.Time `json:"taken_at"`

	// Rect is the detected rectangle the still was cropped to, normalized
	// to the working frame. Nil when the full frame was captured.
	Rect *detect.Rectangle `json:"rect,omitempty"`

	// Image is the processed capture.
	Image image.Image `json:"-"`

	// PNG is the encoded form of Image.
	PNG []byte `json:"-"`
}

// Options controls capture post-processing.
type Options struct {
	// Enhance applies a contrast adjustment and a sharpen pass to the
	// cropped card before encoding.
	Enhance bool

	// Contrast is the bild contrast change (-100..100) used when Enhance
	// is set.
	Contrast float64
}

// Freeze produces the session's Still from the most recent sampled frame.
//
// When rect is non-nil it is denormalized against the frame bounds and the
// frame is cropped to it; a nil rect captures the whole frame. The crop is
// clamped so a rectangle extending past the frame never fails - the excess
// is simply cut off. Returns ErrNoFrame when frame is nil.
func Freeze(frame image.Image, rect *detect.Rectangle, sessionID string, now time.Time, opts Options) (*Still, error) {
	if frame == nil {
		return nil, ErrNoFrame
	}

	out := frame
	if rect != nil {
		crop := denormalize(*rect, frame.Bounds())
		if crop.Empty() {
			return nil, fmt.Errorf("degenerate capture region %v", crop)
		}
		out = imaging.Crop(frame, crop)
	}

	if opts.Enhance {
		out = effect.Sharpen(adjust.Contrast(out, opts.Contrast))
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("failed to encode capture: %w", err)
	}

	return &Still{
		SessionID: sessionID,
		Filename:  fmt.Sprintf("scan-%s-%d.png", sessionID, now.Unix()),
		TakenAt:   now,
		Rect:      rect,
		Image:     out,
		PNG:       buf.Bytes(),
	}, nil
}

// denormalize maps a normalized rectangle onto pixel bounds, clamped to the
// frame.
func denormalize(r detect.Rectangle, bounds image.Rectangle) image.Rectangle {
	w := float64(bounds.Dx())
	h := float64(bounds.Dy())

	x1 := bounds.Min.X + int(r.X*w)
	y1 := bounds.Min.Y + int(r.Y*h)
	x2 := bounds.Min.X + int((r.X+r.Width)*w)
	y2 := bounds.Min.Y + int((r.Y+r.Height)*h)

	return image.Rect(x1, y1, x2, y2).Intersect(bounds)
}
