// Package writer batches streamed bars and flushes them through the
// orchestrator.
//
// A batch is flushed when it reaches the configured size or when the flush
// interval elapses, whichever comes first. Duplicate bars for the same symbol
// and minute within a batch collapse to the latest one received. A rejected
// batch is logged and counted; it is never retried.
package writer
