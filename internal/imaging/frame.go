package imaging

import (
	"image"

	"github.com/disintegration/gift"
	"github.com/disintegration/imaging"
)

// Frame is an immutable grid of per-pixel intensity sums for one sampled
// instant of the video source.
//
// Each cell holds the sum of the 8-bit red, green and blue channels
// (0-765), which is the cheap luminance-like quantity the edge extractor
// thresholds against. A Frame is produced once per executed tick from the
// downscaled working image and discarded after the tick completes; it is
// never mutated after construction.
type Frame struct {
	width  int
	height int
	sums   []uint16
}

// NewFrame samples an image into an intensity-sum grid.
//
// The image is read once, left-to-right, top-to-bottom. Color models other
// than 8-bit RGBA are converted through the standard image.Image interface,
// so any decoded image works as input.
func NewFrame(img image.Image) *Frame {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	f := &Frame{
		width:  width,
		height: height,
		sums:   make([]uint16, width*height),
	}

	idx := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
			// RGBA returns 16-bit channels; shift down to 8-bit before summing.
			f.sums[idx] = uint16(r>>8) + uint16(g>>8) + uint16(b>>8)
			idx++
		}
	}
	return f
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int { return f.width }

// Height returns the frame height in pixels.
func (f *Frame) Height() int { return f.height }

// SumAt returns the channel-intensity sum (0-765) at (x, y).
// No bounds checking is performed; callers iterate within Width/Height.
func (f *Frame) SumAt(x, y int) int {
	return int(f.sums[y*f.width+x])
}

// Downscale resizes img so its width does not exceed maxWidth, preserving
// aspect ratio. Images at or below maxWidth are returned unchanged.
//
// Downscaling bounds the cost of edge extraction and the rectangle search,
// both of which iterate over every working-frame pixel.
func Downscale(img image.Image, maxWidth int) image.Image {
	if maxWidth <= 0 || img.Bounds().Dx() <= maxWidth {
		return img
	}
	// Height 0 preserves aspect ratio.
	return imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
}

// Blur applies a Gaussian blur with the given sigma and returns the result.
// Used as an optional pre-filter before edge extraction to suppress sensor
// noise on low-light frames; sigma <= 0 returns the image unchanged.
func Blur(img image.Image, sigma float32) image.Image {
	if sigma <= 0 {
		return img
	}
	g := gift.New(gift.GaussianBlur(sigma))
	dst := image.NewRGBA(g.Bounds(img.Bounds()))
	g.Draw(dst, img)
	return dst
}
