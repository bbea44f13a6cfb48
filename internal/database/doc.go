// Package database opens the storage backend named by configuration.
//
// Two drivers are supported:
//   - timescale: a pgx connection pool exposed through database/sql
//   - sqlite: an embedded file for local runs and tests
//
// Either way the result is a *sql.DB plus the repository dialect that matches it.
package database
