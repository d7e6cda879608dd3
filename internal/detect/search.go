package detect

import (
	"github.com/scandeck/cardscan/internal/imaging"
)

// SearchParams bounds and steps the brute-force candidate search. All
// values are external tunables; see the package documentation for how the
// defaults were chosen.
type SearchParams struct {
	// OriginFraction limits candidate top-left corners to the upper-left
	// fraction of the frame width and height.
	OriginFraction float64 `json:"origin_fraction"`

	// MinWidthFraction and MaxWidthFraction bound candidate widths as
	// fractions of the frame width.
	MinWidthFraction float64 `json:"min_width_fraction"`
	MaxWidthFraction float64 `json:"max_width_fraction"`

	// MinHeightFraction and MaxHeightFraction bound candidate heights as
	// fractions of the frame height.
	MinHeightFraction float64 `json:"min_height_fraction"`
	MaxHeightFraction float64 `json:"max_height_fraction"`

	// PositionStep and SizeStep are the pixel increments of the scan.
	PositionStep int `json:"position_step"`
	SizeStep     int `json:"size_step"`

	// MinAspect and MaxAspect gate candidates by width/height ratio
	// (inclusive). A standard card is roughly 1.75:1.
	MinAspect float64 `json:"min_aspect"`
	MaxAspect float64 `json:"max_aspect"`

	// ConfidenceFloor is the minimum score a candidate must reach to be
	// returned at all. A score exactly at the floor is accepted.
	ConfidenceFloor float64 `json:"confidence_floor"`
}

// DefaultSearchParams returns the standard search configuration.
func DefaultSearchParams() SearchParams {
	return SearchParams{
		OriginFraction:    0.3,
		MinWidthFraction:  0.3,
		MaxWidthFraction:  0.9,
		MinHeightFraction: 0.2,
		MaxHeightFraction: 0.7,
		PositionStep:      20,
		SizeStep:          30,
		MinAspect:         1.2,
		MaxAspect:         2.2,
		ConfidenceFloor:   0.3,
	}
}

// FindRectangle scans the bounded candidate space over the edge map and
// returns the highest-scoring document-shaped region, or nil when no
// candidate reaches the confidence floor ("no document visible").
//
// The returned rectangle is normalized to the edge map dimensions. Ties
// are resolved by scan order: the first candidate found wins.
func FindRectangle(edges *imaging.EdgeMap, p SearchParams) *Rectangle {
	frameW := edges.Width()
	frameH := edges.Height()
	if frameW < 2 || frameH < 2 {
		return nil
	}

	posStep := p.PositionStep
	if posStep < 1 {
		posStep = 1
	}
	sizeStep := p.SizeStep
	if sizeStep < 1 {
		sizeStep = 1
	}

	maxX := int(float64(frameW) * p.OriginFraction)
	maxY := int(float64(frameH) * p.OriginFraction)
	minW := int(float64(frameW) * p.MinWidthFraction)
	maxW := int(float64(frameW) * p.MaxWidthFraction)
	minH := int(float64(frameH) * p.MinHeightFraction)
	maxH := int(float64(frameH) * p.MaxHeightFraction)

	var best *Rectangle
	bestScore := 0.0

	for y := 0; y <= maxY; y += posStep {
		for x := 0; x <= maxX; x += posStep {
			for h := minH; h <= maxH; h += sizeStep {
				for w := minW; w <= maxW; w += sizeStep {
					if w <= 0 || h <= 0 {
						continue
					}
					aspect := float64(w) / float64(h)
					if aspect < p.MinAspect || aspect > p.MaxAspect {
						continue
					}

					score := scoreCandidate(edges, x, y, w, h)
					if score > bestScore {
						bestScore = score
						best = &Rectangle{
							X:          float64(x) / float64(frameW),
							Y:          float64(y) / float64(frameH),
							Width:      float64(w) / float64(frameW),
							Height:     float64(h) / float64(frameH),
							Confidence: score,
						}
					}
				}
			}
		}
	}

	if best == nil || bestScore < p.ConfidenceFloor {
		return nil
	}
	return best
}

// scoreCandidate computes edgeDensity * areaFraction for the candidate box
// (x, y, w, h) in edge-map pixel coordinates.
//
// Edge density is the fraction of perimeter sample points that land on edge
// cells, with the four perimeter segments clipped to the edge-map bounds.
// Candidates whose clipped perimeter is empty score 0.
func scoreCandidate(edges *imaging.EdgeMap, x, y, w, h int) float64 {
	frameW := edges.Width()
	frameH := edges.Height()

	x2 := x + w
	y2 := y + h

	left := clampInt(x, 0, frameW-1)
	right := clampInt(x2, 0, frameW-1)
	top := clampInt(y, 0, frameH-1)
	bottom := clampInt(y2, 0, frameH-1)

	hits := 0
	total := 0

	// Top and bottom segments.
	for px := left; px <= right; px++ {
		total += 2
		if edges.At(px, top) {
			hits++
		}
		if edges.At(px, bottom) {
			hits++
		}
	}
	// Left and right segments, excluding the corners already sampled.
	for py := top + 1; py < bottom; py++ {
		total += 2
		if edges.At(left, py) {
			hits++
		}
		if edges.At(right, py) {
			hits++
		}
	}

	if total == 0 {
		return 0
	}

	density := float64(hits) / float64(total)
	areaFraction := float64(w*h) / float64(frameW*frameH)
	return density * areaFraction
}

// clampInt constrains an integer value to the range [min, max].
func clampInt(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
