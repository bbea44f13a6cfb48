package schema

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"

	"github.com/rickgao/market-data/internal/frame"
)

// Check names used in failure cases.
const (
	CheckPresent         = "column_in_dataframe"
	CheckType            = "dtype"
	CheckNotNull         = "not_nullable"
	CheckDomain          = "isin"
	CheckUnique          = "field_uniqueness"
	CheckCompositeUnique = "multiple_fields_uniqueness"
)

// Validate checks f against t and returns the validated dataset.
//
// Columns of f that t does not declare are dropped. Every cell is checked and
// every failure is reported; invariants run only when the per-column checks
// found nothing. The returned error is a *ValidationError.
func Validate(name string, t *Table, f *frame.Frame) (ds *Dataset, err error) {
	if t == nil || f == nil {
		return nil, engineError(name, errors.New("nil table or frame"))
	}
	defer func() {
		if r := recover(); r != nil {
			ds, err = nil, engineError(name, fmt.Errorf("panic: %v", r))
		}
	}()

	v := validator{table: t, bad: make(map[[2]int]bool)}
	rows := v.cells(f)
	v.uniqueness(rows)

	if len(v.cases) == 0 {
		ds = newDataset(t.ColumnNames(), rows)
		if err := v.invariants(ds); err != nil {
			return nil, engineError(name, err)
		}
	}
	if len(v.cases) > 0 {
		v.sort()
		return nil, &ValidationError{Kind: KindSchemaViolation, Table: name, Cases: v.cases}
	}
	return ds, nil
}

func engineError(name string, cause error) *ValidationError {
	return &ValidationError{Kind: KindEngineError, Table: name, Cause: cause}
}

type validator struct {
	table *Table
	cases []FailureCase

	// bad marks cells that failed, keyed by row then column index.
	bad map[[2]int]bool
}

func (v *validator) fail(row, col int, check string, value any) {
	name := v.table.columns[col].Name
	v.cases = append(v.cases, FailureCase{Row: row, Column: name, Check: check, Value: value})
	if row >= 0 {
		v.bad[[2]int{row, col}] = true
	}
}

// cells runs presence, type, nullability, domain and value checks and returns
// the coerced rows in table column order.
func (v *validator) cells(f *frame.Frame) [][]any {
	cols := v.table.columns
	present := make([]bool, len(cols))
	for c, col := range cols {
		present[c] = f.Has(col.Name)
		if !present[c] && !col.Optional {
			v.fail(-1, c, CheckPresent, nil)
		}
	}

	rows := make([][]any, f.Len())
	for r := range rows {
		row := make([]any, len(cols))
		for c, col := range cols {
			if !present[c] {
				continue
			}
			raw, _ := f.Value(r, col.Name)
			row[c] = v.cell(r, c, col, raw)
		}
		rows[r] = row
	}
	return rows
}

func (v *validator) cell(r, c int, col Column, raw any) any {
	if isNull(raw) {
		if !col.Nullable {
			v.fail(r, c, CheckNotNull, nil)
		}
		return nil
	}
	val, err := col.Type.Coerce(raw)
	if err != nil {
		v.fail(r, c, CheckType, raw)
		return nil
	}
	if cat, ok := col.Type.(CategoryType); ok && !cat.Contains(val.(string)) {
		v.fail(r, c, CheckDomain, val)
	}
	for _, chk := range col.Checks {
		if !chk.Test(val) {
			v.fail(r, c, chk.Name, val)
		}
	}
	return val
}

// isNull treats nil, nil pointers and NaN as missing values.
func isNull(v any) bool {
	if v == nil {
		return true
	}
	switch x := v.(type) {
	case float64:
		return math.IsNaN(x)
	case float32:
		return math.IsNaN(float64(x))
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

func (v *validator) uniqueness(rows [][]any) {
	t := v.table
	var single []string
	for _, col := range t.columns {
		if col.Unique {
			single = append(single, col.Name)
		}
	}
	if t.kind == KindTimeseries {
		if key := t.ConflictKey(); len(key) > 1 {
			v.unique(rows, key, CheckCompositeUnique)
		} else {
			single = append(single, key...)
		}
	} else {
		single = append(single, t.primaryKey)
		single = append(single, t.uniqueFields...)
	}

	seen := make(map[string]bool)
	for _, name := range single {
		if !seen[name] {
			seen[name] = true
			v.unique(rows, []string{name}, CheckUnique)
		}
	}
}

// unique reports every repeated occurrence of the combined value of columns
// after the first. Rows with a failed or null cell in those columns are skipped.
func (v *validator) unique(rows [][]any, columns []string, check string) {
	idx := make([]int, len(columns))
	for i, name := range columns {
		idx[i] = v.table.index[name]
	}

	first := make(map[string]bool, len(rows))
	for r, row := range rows {
		var key strings.Builder
		skip := false
		for _, c := range idx {
			if row[c] == nil || v.bad[[2]int{r, c}] {
				skip = true
				break
			}
			fmt.Fprintf(&key, "%T:%v\x00", row[c], row[c])
		}
		if skip {
			continue
		}
		k := key.String()
		if !first[k] {
			first[k] = true
			continue
		}
		if len(idx) == 1 {
			v.fail(r, idx[0], check, row[idx[0]])
			continue
		}
		vals := make([]any, len(idx))
		for i, c := range idx {
			vals[i] = row[c]
		}
		v.cases = append(v.cases, FailureCase{
			Row: r, Column: strings.Join(columns, ","), Check: check, Value: vals,
		})
	}
}

func (v *validator) invariants(ds *Dataset) error {
	for _, inv := range v.table.invariants {
		for _, name := range inv.Columns {
			if _, ok := v.table.index[name]; !ok {
				return fmt.Errorf("invariant %s: unknown column %q", inv.Name, name)
			}
		}
		column := strings.Join(inv.Columns, ",")
		for r := range ds.Len() {
			ok, err := holds(inv, ds.Row(r))
			if err != nil {
				return err
			}
			if ok {
				continue
			}
			vals := make([]any, len(inv.Columns))
			for i, name := range inv.Columns {
				vals[i], _ = ds.Value(r, name)
			}
			v.cases = append(v.cases, FailureCase{Row: r, Column: column, Check: inv.Name, Value: vals})
		}
	}
	return nil
}

func holds(inv Invariant, r Row) (ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("invariant %s: row %d: %v", inv.Name, r.Index(), p)
		}
	}()
	return inv.Holds(r), nil
}

// sort orders cases by row, then column declaration order, then check name.
func (v *validator) sort() {
	order := func(column string) int {
		first, _, _ := strings.Cut(column, ",")
		if i, ok := v.table.index[first]; ok {
			return i
		}
		return len(v.table.columns)
	}
	slices.SortStableFunc(v.cases, func(a, b FailureCase) int {
		if a.Row != b.Row {
			return a.Row - b.Row
		}
		if oa, ob := order(a.Column), order(b.Column); oa != ob {
			return oa - ob
		}
		return strings.Compare(a.Check, b.Check)
	})
}
