// Package detect finds the best document-shaped region in an edge map.
//
// The detector performs a brute-force search over a constrained space of
// position, size and aspect-ratio combinations, scoring each candidate by
// the fraction of its perimeter that lands on edge cells, weighted by the
// candidate's share of the frame area. The highest-scoring candidate above
// a confidence floor is returned; anything else means "no document visible
// this tick".
//
// # Search Space
//
// The search is deliberately coarse - a speed/precision trade-off tuned for
// per-tick execution on mobile-class CPUs, not an exhaustive scan:
//
//   - Top-left corner restricted to the upper-left fraction of the frame
//     (documents are assumed roughly centered under the UI's framing guide)
//   - Width and height restricted to bounded fractions of the frame
//   - Position and size stepped by fixed pixel increments
//   - Candidates outside the card aspect-ratio band are rejected before
//     scoring
//
// All bounds and steps are external tunables (SearchParams); the defaults
// were chosen empirically and carry no inherent meaning.
//
// # Confidence Scores
//
// A candidate's confidence is edgeDensity * areaFraction, where edgeDensity
// is the fraction of perimeter sample points marked as edges and
// areaFraction is (w*h)/(frameW*frameH). The value is not a probability;
// only relative ordering and the fixed floor threshold matter. The area
// weighting biases selection toward confident, reasonably large boxes
// rather than small high-density specks.
//
// # Tie-Breaking
//
// When multiple candidates score exactly equal, the first one found in scan
// order wins (y, then x, then height, then width). This nondeterminism is
// accepted for degenerate equal-score cases.
package detect
