package detect

// Rectangle is a candidate document bounding box.
//
// Coordinates and dimensions are floats in [0,1] normalized to the frame
// dimensions, origin at the top-left corner. Exactly one Rectangle (or
// none) is produced per tick; the pipeline retains the most recent one only
// for the overlap comparison on the following tick.
type Rectangle struct {
	// X is the left edge as a fraction of frame width.
	X float64 `json:"x"`

	// Y is the top edge as a fraction of frame height.
	Y float64 `json:"y"`

	// Width is the horizontal extent as a fraction of frame width.
	Width float64 `json:"width"`

	// Height is the vertical extent as a fraction of frame height.
	Height float64 `json:"height"`

	// Confidence is the edge-density-weighted area score. Non-negative,
	// not a probability; only relative ordering and the configured floor
	// threshold are meaningful.
	Confidence float64 `json:"confidence"`

	// Stable is set once the stability tracker has seen this region
	// persist long enough to trust a capture.
	Stable bool `json:"stable"`
}

// Area returns the normalized area (Width * Height).
func (r Rectangle) Area() float64 {
	return r.Width * r.Height
}

// IoU computes the Intersection-over-Union of two rectangles:
// intersectionArea / (area1 + area2 - intersectionArea).
//
// Disjoint rectangles yield 0. Degenerate geometry (zero or negative area
// on both sides) also yields 0 rather than dividing by zero.
func IoU(a, b Rectangle) float64 {
	x1 := maxFloat(a.X, b.X)
	y1 := maxFloat(a.Y, b.Y)
	x2 := minFloat(a.X+a.Width, b.X+b.Width)
	y2 := minFloat(a.Y+a.Height, b.Y+b.Height)

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	inter := (x2 - x1) * (y2 - y1)
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
