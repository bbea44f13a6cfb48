// Package metrics provides Prometheus collectors for the ingestion pipeline.
//
// Key metrics:
//   - Rows inserted and updated per destination table
//   - Validation failures per table
//   - Operation results and durations per registry action
//   - Stream messages and writer flushes
//
// Collectors are registered on a caller supplied prometheus.Registerer. Every
// method is safe to call on a nil *Metrics.
package metrics
