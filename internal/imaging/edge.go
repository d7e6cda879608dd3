package imaging

// DefaultEdgeThreshold is the gradient threshold used when callers pass a
// non-positive value to BuildEdgeMap. The scale is 0-765 per neighbor
// difference, summed over four neighbors.
const DefaultEdgeThreshold = 100

// EdgeMap is a binary edge grid with the same dimensions as the working
// frame it was derived from.
//
// A cell is true when the local intensity gradient at that pixel exceeded
// the threshold during construction. Border cells (x=0, y=0, x=width-1,
// y=height-1) are never edges because the gradient needs all four axis
// neighbors.
type EdgeMap struct {
	width  int
	height int
	cells  []bool
}

// Width returns the edge map width in cells.
func (e *EdgeMap) Width() int { return e.width }

// Height returns the edge map height in cells.
func (e *EdgeMap) Height() int { return e.height }

// At reports whether the cell at (x, y) is an edge. Out-of-bounds
// coordinates return false rather than panicking, which lets perimeter
// sampling clip against the map without explicit bounds checks.
func (e *EdgeMap) At(x, y int) bool {
	if x < 0 || x >= e.width || y < 0 || y >= e.height {
		return false
	}
	return e.cells[y*e.width+x]
}

// Count returns the number of edge cells. Useful for diagnostics and tests.
func (e *EdgeMap) Count() int {
	n := 0
	for _, c := range e.cells {
		if c {
			n++
		}
	}
	return n
}

// BuildEdgeMap derives a binary edge grid from a frame using local
// intensity-gradient thresholding.
//
// For each interior pixel the four axis neighbors (left, right, up, down)
// are compared against the pixel's channel-intensity sum; the cell is
// marked as an edge when the sum of the absolute differences exceeds
// threshold. A threshold <= 0 selects DefaultEdgeThreshold.
//
// The operation is deterministic and purely functional: the same frame
// always produces the same edge map. Cost is linear in pixel count, which
// is why callers downscale the frame first.
func BuildEdgeMap(f *Frame, threshold int) *EdgeMap {
	if threshold <= 0 {
		threshold = DefaultEdgeThreshold
	}

	width := f.Width()
	height := f.Height()
	e := &EdgeMap{
		width:  width,
		height: height,
		cells:  make([]bool, width*height),
	}

	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			c := f.SumAt(x, y)
			grad := absInt(c-f.SumAt(x-1, y)) +
				absInt(c-f.SumAt(x+1, y)) +
				absInt(c-f.SumAt(x, y-1)) +
				absInt(c-f.SumAt(x, y+1))
			if grad > threshold {
				e.cells[y*width+x] = true
			}
		}
	}
	return e
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
