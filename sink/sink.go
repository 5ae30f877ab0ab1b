// Package sink implements the bundled asynchronous logging/writer
// subsystem (SPEC_FULL.md §9/§10): a producer/drain Pipeline that
// batches text records and hands them to a concrete Sink — a
// size-rotating FileSink or a line-buffered ConsoleSink.
package sink

// Sink is the polymorphic terminal writer a Pipeline drains batches
// into (spec.md §4.4 "Sink-specific writer"). Both methods own their
// own locking around the backing medium; a Sink implementation must
// never block the pipeline's producer-side Write.
type Sink interface {
	// writeBatch appends every record in batch to the backing medium,
	// in order, stopping at the first failure. The returned error is
	// surfaced to the pipeline's captured-error list; FileSink also
	// records it on its own error list, ConsoleSink keeps no list.
	writeBatch(batch []string) error

	// WriteDirect pushes record synchronously and flushes it, bypassing
	// the pipeline's batching — the "pushes-and-flushes" path spec.md
	// §4.4 calls for alongside the batch writer.
	WriteDirect(record string) error
}
