// Package repository persists validated containers in a SQL backend.
//
// Operations:
//   - EnsureTable: idempotent CREATE TABLE with audit columns, an updated_at
//     trigger and, for timeseries tables on TimescaleDB, hypertable partitioning
//   - Save: bulk INSERT of every row
//   - Upsert: bulk INSERT ... ON CONFLICT (key) DO UPDATE with insert/update counts
//   - Load: SELECT with AND-ed filters, ordering and a limit, all values bound
//
// Every operation runs on its own connection and transaction. Write failures
// are reported in SaveResult and UpsertResult; only provisioning failures and
// Load errors are returned as Go errors.
//
// Two dialects are provided, Timescale and SQLite (meant for local runs and
// tests). Both classify upserted rows exactly through a RETURNING marker. A
// Dialect without a marker gets an estimate from updated_at instead.
package repository
