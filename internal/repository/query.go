package repository

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/market-data/internal/schema"
)

// Audit columns added to every table.
const (
	createdAt = "created_at"
	updatedAt = "updated_at"
)

// quote returns name as a quoted SQL identifier. Names reaching the builder
// come from a schema.Table or have been matched against the catalog.
func quote(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quote(n)
	}
	return strings.Join(quoted, ", ")
}

// literal returns s as a SQL string literal.
func literal(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func createTableSQL(d Dialect, table string, t *schema.Table) string {
	var defs []string
	for _, col := range t.Columns() {
		def := quote(col.Name) + " " + col.Type.Map(d)
		if col.Nullable {
			def += " NULL"
		} else {
			def += " NOT NULL"
		}
		if cat, ok := col.Type.(schema.CategoryType); ok {
			values := cat.Values()
			for i, v := range values {
				values[i] = literal(v)
			}
			def += fmt.Sprintf(" CHECK (%s IN (%s))", quote(col.Name), strings.Join(values, ", "))
		}
		defs = append(defs, def)
	}
	defs = append(defs,
		quote(createdAt)+" "+d.AuditType()+" NOT NULL DEFAULT ("+d.Now()+")",
		quote(updatedAt)+" "+d.AuditType()+" NULL",
	)

	if t.Kind() == schema.KindTimeseries {
		// A hypertable only accepts unique constraints that include the
		// partitioning column, so the key is declared as one constraint.
		defs = append(defs, "UNIQUE ("+quoteAll(t.ConflictKey())+")")
	} else {
		defs = append(defs, "PRIMARY KEY ("+quote(t.PrimaryKey())+")")
		for _, f := range uniqueColumns(t) {
			defs = append(defs, "UNIQUE ("+quote(f)+")")
		}
	}

	return "CREATE TABLE IF NOT EXISTS " + quote(table) + " (\n\t" + strings.Join(defs, ",\n\t") + "\n)"
}

// uniqueColumns lists the single-column unique constraints of a table other
// than its primary key.
func uniqueColumns(t *schema.Table) []string {
	var out []string
	add := func(name string) {
		if name != t.PrimaryKey() && !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	for _, f := range t.UniqueFields() {
		add(f)
	}
	for _, col := range t.Columns() {
		if col.Unique {
			add(col.Name)
		}
	}
	return out
}

// chunkRows returns how many rows fit in one statement.
func chunkRows(d Dialect, columns int) int {
	return max(d.MaxParams()/max(columns, 1), 1)
}

// values renders the VALUES list for rows x columns placeholders.
func values(d Dialect, rows, columns int) string {
	return valuesFrom(d, 1, rows, columns)
}

// valuesFrom is values with placeholders numbered from first.
func valuesFrom(d Dialect, first, rows, columns int) string {
	var b strings.Builder
	n := first
	for r := range rows {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range columns {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(d.Placeholder(n))
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}

func insertSQL(d Dialect, table string, columns []string, rows int) string {
	return "INSERT INTO " + quote(table) + " (" + quoteAll(columns) + ") VALUES " + values(d, rows, len(columns))
}

// upsertSQL updates every non-key column, and updated_at, on conflict.
func upsertSQL(d Dialect, table string, columns, key []string, rows int) string {
	var set []string
	for _, c := range columns {
		if !slices.Contains(key, c) {
			set = append(set, quote(c)+" = excluded."+quote(c))
		}
	}
	set = append(set, quote(updatedAt)+" = "+d.Now())

	q := insertSQL(d, table, columns, rows) +
		" ON CONFLICT (" + quoteAll(key) + ") DO UPDATE SET " + strings.Join(set, ", ")
	if m := d.InsertedMarker(); m != "" {
		q += " RETURNING " + m
	}
	return q
}

// countUpdatedSQL counts rows of the given keys whose updated_at is at or
// after the first argument.
func countUpdatedSQL(d Dialect, table string, key []string, rows int) string {
	return "SELECT COUNT(*) FROM " + quote(table) +
		" WHERE " + quote(updatedAt) + " >= " + d.Placeholder(1) +
		" AND (" + quoteAll(key) + ") IN (VALUES " + valuesFrom(d, 2, rows, len(key)) + ")"
}

// selectSQL builds the load query. opts must already be checked against the
// table's catalog columns.
func selectSQL(d Dialect, table string, opts *LoadOptions) (string, []any) {
	q := "SELECT * FROM " + quote(table)
	if opts == nil {
		return q, nil
	}

	var args []any
	if len(opts.Filters) > 0 {
		preds := make([]string, len(opts.Filters))
		for i, f := range opts.Filters {
			args = append(args, f.Value)
			preds[i] = quote(f.Column) + " " + string(f.Op) + " " + d.Placeholder(len(args))
		}
		q += " WHERE " + strings.Join(preds, " AND ")
	}
	if len(opts.OrderBy) > 0 {
		q += " ORDER BY " + quoteAll(opts.OrderBy)
	}
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		q += " LIMIT " + d.Placeholder(len(args))
	}
	return q, args
}
