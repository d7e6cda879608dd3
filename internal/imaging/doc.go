// Package imaging provides the frame-level primitives of the card scanning
// pipeline: working-frame sampling, intensity buffers, and edge extraction.
//
// The pipeline operates on small, downscaled working frames so that the
// per-tick analysis stays cheap on constrained hardware. A Frame is an
// immutable grid of per-pixel channel-intensity sums (0-765) derived from a
// sampled image; an EdgeMap is a boolean grid of the same dimensions marking
// cells whose local intensity gradient exceeds a threshold.
//
// # Coordinate System
//
// All pixel coordinates are 0-based with the origin at the top-left corner:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//
// # Determinism
//
// Frame construction and edge extraction are purely functional: the same
// input image always yields the same Frame, and the same Frame always yields
// the same EdgeMap. No hidden state is carried between ticks.
//
// # Frame Sources
//
// FrameSource abstracts the live video or image input the scanning loop
// samples from. Sources are pull-based: the loop calls Sample once per
// executed tick and never retains the returned image past the following
// tick. DirSource replays a directory of still images as a session, which
// is how the CLI and soak tests drive the pipeline without a camera.
package imaging
