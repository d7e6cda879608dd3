// Package scan drives the real-time detection loop: cooperative frame
// scheduling, temporal stability tracking, and the capture trigger state
// machine.
//
// A Session owns one scanning attempt end to end. Each executed tick it
// samples the frame source, builds an edge map, searches for a document
// rectangle, feeds the result to the stability tracker and advances the
// capture state machine. All stages run synchronously within one tick;
// the scheduler is the only suspension point. Closing the session stops
// further ticks, releases the source and discards any pending settle timer
// as a single teardown operation.
package scan
