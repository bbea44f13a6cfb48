package schema

import (
	"fmt"
	"slices"
	"time"

	"github.com/rickgao/market-data/internal/frame"
)

// Dataset is the validated, immutable output of Validate. Its columns are
// exactly the table's columns in declaration order and every value is either
// nil or the canonical Go value of the column type.
type Dataset struct {
	columns []string
	index   map[string]int
	rows    [][]any
}

func newDataset(columns []string, rows [][]any) *Dataset {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}
	return &Dataset{columns: columns, index: index, rows: rows}
}

// Columns returns the column names in order.
func (d *Dataset) Columns() []string { return slices.Clone(d.columns) }

// Len returns the number of rows.
func (d *Dataset) Len() int { return len(d.rows) }

// Values returns a copy of row i in column order.
func (d *Dataset) Values(i int) []any { return slices.Clone(d.rows[i]) }

// Row returns a read-only view of row i.
func (d *Dataset) Row(i int) Row { return Row{ds: d, i: i} }

// Value returns the value at row i in the named column.
func (d *Dataset) Value(i int, column string) (any, bool) {
	c, ok := d.index[column]
	if !ok {
		return nil, false
	}
	return d.rows[i][c], true
}

// Frame copies the dataset into a new frame.
func (d *Dataset) Frame() *frame.Frame {
	f := frame.MustNew(d.columns...)
	for _, r := range d.rows {
		f.MustAppend(r...)
	}
	return f
}

// Row is a view of one dataset row with typed getters. The getters panic when
// the column does not exist or holds a different type; inside an invariant that
// panic is reported as an engine error.
type Row struct {
	ds *Dataset
	i  int
}

// Index returns the row number.
func (r Row) Index() int { return r.i }

// Get returns the raw value of a column, nil for nulls.
func (r Row) Get(column string) any {
	c, ok := r.ds.index[column]
	if !ok {
		panic(fmt.Sprintf("schema: unknown column %q", column))
	}
	return r.ds.rows[r.i][c]
}

// IsNull reports whether a column is null in this row.
func (r Row) IsNull(column string) bool { return r.Get(column) == nil }

func (r Row) Int64(column string) int64     { return r.Get(column).(int64) }
func (r Row) Float64(column string) float64 { return r.Get(column).(float64) }
func (r Row) Float32(column string) float32 { return r.Get(column).(float32) }
func (r Row) Bool(column string) bool       { return r.Get(column).(bool) }
func (r Row) String(column string) string   { return r.Get(column).(string) }
func (r Row) Time(column string) time.Time  { return r.Get(column).(time.Time) }
