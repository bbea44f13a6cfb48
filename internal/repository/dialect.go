package repository

import (
	"github.com/rickgao/market-data/internal/schema"
)

// Statement is a SQL statement with its bound arguments.
type Statement struct {
	SQL  string
	Args []any
}

// Dialect adapts the repository to a SQL backend. It maps every semantic type
// through schema.Mapper and supplies the backend specific statements used for
// provisioning, catalog lookups and upsert classification.
type Dialect interface {
	schema.Mapper

	// Name identifies the backend in logs.
	Name() string

	// Placeholder returns the bind marker for the n-th argument, starting at 1.
	Placeholder(n int) string

	// MaxParams is the largest number of bound arguments in one statement.
	MaxParams() int

	// AuditType is the column type of created_at and updated_at.
	AuditType() string

	// Now is an expression evaluating to the current write time.
	Now() string

	// TableExists is a query taking the table name as its only argument and
	// returning one boolean.
	TableExists() string

	// TableColumns is a query taking the table name as its only argument and
	// returning the column names in order.
	TableColumns() string

	// Lock returns statements that serialize provisioning of one table for the
	// rest of the transaction.
	Lock(table string) []Statement

	// Provision returns the statements run after CREATE TABLE: the updated_at
	// trigger and, for timeseries tables, partitioning.
	Provision(table string, t *schema.Table) []Statement

	// InsertedMarker is a RETURNING expression that is true for inserted rows
	// and false for updated ones. Empty when the backend has none, in which case
	// the split is estimated from updated_at over the batch's conflict keys.
	InsertedMarker() string
}
