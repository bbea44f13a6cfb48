// Package frame holds untrusted tabular data as it arrives from a fetcher or
// leaves the database.
//
// A Frame is deliberately loose: any value type is accepted in any column. It
// becomes trusted only after schema validation turns it into a schema.Dataset.
package frame

import (
	"fmt"
	"slices"
)

// Frame is an ordered set of named columns and row-major values.
type Frame struct {
	columns []string
	index   map[string]int
	rows    [][]any
}

// New creates an empty frame with the given columns.
// Duplicate column names are rejected.
func New(columns ...string) (*Frame, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("duplicate column %q", c)
		}
		index[c] = i
	}
	return &Frame{
		columns: slices.Clone(columns),
		index:   index,
	}, nil
}

// MustNew is New that panics on error. Intended for literals in tests and fixtures.
func MustNew(columns ...string) *Frame {
	f, err := New(columns...)
	if err != nil {
		panic(err)
	}
	return f
}

// FromRecords builds a frame from maps. The column order is taken from columns;
// keys missing from a record become nil.
func FromRecords(columns []string, records []map[string]any) (*Frame, error) {
	f, err := New(columns...)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		row := make([]any, len(columns))
		for i, c := range columns {
			row[i] = rec[c]
		}
		f.rows = append(f.rows, row)
	}
	return f, nil
}

// Append adds a row. The number of values must match the number of columns.
func (f *Frame) Append(values ...any) error {
	if len(values) != len(f.columns) {
		return fmt.Errorf("append row: got %d values, want %d", len(values), len(f.columns))
	}
	f.rows = append(f.rows, slices.Clone(values))
	return nil
}

// MustAppend is Append that panics on error and returns f for chaining.
func (f *Frame) MustAppend(values ...any) *Frame {
	if err := f.Append(values...); err != nil {
		panic(err)
	}
	return f
}

// WithColumn returns a copy of f with a column set to a constant value on every
// row. An existing column of that name is overwritten.
func (f *Frame) WithColumn(name string, value any) *Frame {
	out := f.clone()
	i, ok := out.index[name]
	if !ok {
		i = len(out.columns)
		out.columns = append(out.columns, name)
		out.index[name] = i
		for r := range out.rows {
			out.rows[r] = append(out.rows[r], nil)
		}
	}
	for r := range out.rows {
		out.rows[r][i] = value
	}
	return out
}

// Head returns a copy holding at most the first n rows.
func (f *Frame) Head(n int) *Frame {
	out := f.clone()
	if n < len(out.rows) {
		out.rows = out.rows[:max(n, 0)]
	}
	return out
}

// Columns returns the column names in order.
func (f *Frame) Columns() []string {
	return slices.Clone(f.columns)
}

// Has reports whether the frame has a column.
func (f *Frame) Has(column string) bool {
	_, ok := f.index[column]
	return ok
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.rows)
}

// Value returns the value at row i in the named column.
// The second result is false when the column does not exist.
func (f *Frame) Value(i int, column string) (any, bool) {
	c, ok := f.index[column]
	if !ok {
		return nil, false
	}
	return f.rows[i][c], true
}

// Row returns a copy of row i.
func (f *Frame) Row(i int) []any {
	return slices.Clone(f.rows[i])
}

// Record returns row i as a map keyed by column name.
func (f *Frame) Record(i int) map[string]any {
	rec := make(map[string]any, len(f.columns))
	for c, name := range f.columns {
		rec[name] = f.rows[i][c]
	}
	return rec
}

// Concat appends the rows of other, which must have the same columns in the same order.
func (f *Frame) Concat(other *Frame) error {
	if !slices.Equal(f.columns, other.columns) {
		return fmt.Errorf("concat: columns %v do not match %v", other.columns, f.columns)
	}
	for _, r := range other.rows {
		f.rows = append(f.rows, slices.Clone(r))
	}
	return nil
}

func (f *Frame) clone() *Frame {
	out := &Frame{
		columns: slices.Clone(f.columns),
		index:   make(map[string]int, len(f.index)),
		rows:    make([][]any, len(f.rows)),
	}
	for k, v := range f.index {
		out.index[k] = v
	}
	for i, r := range f.rows {
		out.rows[i] = slices.Clone(r)
	}
	return out
}
