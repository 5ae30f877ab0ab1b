package sink

import "errors"

// Sentinel errors the sink subsystem reports. A write failure is never
// propagated across the producer/drain boundary as a panic or a
// terminated goroutine; it is always one of these, recorded in the
// owning pipeline's or sink's error list (spec.md §7).
var (
	// ErrRangeInvalid marks a byte or line range that is out of bounds or
	// inverted (start past end, or past end of file).
	ErrRangeInvalid = errors.New("sink: range invalid")

	// ErrPathMissing marks a configured directory that does not exist.
	ErrPathMissing = errors.New("sink: path missing")

	// ErrSinkIO wraps any underlying filesystem or stream failure.
	ErrSinkIO = errors.New("sink: io failure")

	// ErrPipelineClosed marks a Write call made after Close has already
	// been called on the pipeline.
	ErrPipelineClosed = errors.New("sink: pipeline closed")
)
