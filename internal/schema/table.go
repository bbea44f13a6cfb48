package schema

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
)

// Kind selects how a table is keyed and stored.
type Kind string

const (
	KindRelational    Kind = "relational"
	KindNonRelational Kind = "non-relational"
	KindTimeseries    Kind = "timeseries"
)

// Check is a constraint on a single non-null value.
type Check struct {
	// Name identifies the check in failure cases, e.g. "greater_than(0)".
	Name string
	Test func(v any) bool
}

// GreaterThan requires numeric values strictly greater than x.
func GreaterThan(x float64) Check {
	return Check{
		Name: "greater_than(" + formatFloat(x) + ")",
		Test: func(v any) bool { f, ok := number(v); return ok && f > x },
	}
}

// GreaterOrEqual requires numeric values greater than or equal to x.
func GreaterOrEqual(x float64) Check {
	return Check{
		Name: "greater_than_or_equal_to(" + formatFloat(x) + ")",
		Test: func(v any) bool { f, ok := number(v); return ok && f >= x },
	}
}

// LessThan requires numeric values strictly less than x.
func LessThan(x float64) Check {
	return Check{
		Name: "less_than(" + formatFloat(x) + ")",
		Test: func(v any) bool { f, ok := number(v); return ok && f < x },
	}
}

// Positive is GreaterThan(0).
func Positive() Check { return GreaterThan(0) }

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

func formatFloat(x float64) string {
	return strconv.FormatFloat(x, 'g', -1, 64)
}

// Column describes one column of a table.
type Column struct {
	Name     string
	Type     Type
	Nullable bool
	Unique   bool

	// Optional columns may be absent from the input and are then filled with nulls.
	// An optional column should also be Nullable.
	Optional bool

	Checks []Check
}

// Invariant is a cross-field rule evaluated once over the whole dataset after all
// per-column checks pass. Holds must be deterministic.
type Invariant struct {
	Name    string
	Columns []string
	Holds   func(r Row) bool
}

// Table is a declarative schema. It is immutable once built.
type Table struct {
	kind         Kind
	primaryKey   string
	uniqueFields []string
	columns      []Column
	index        map[string]int
	invariants   []Invariant
}

// Option configures a Table.
type Option func(*Table)

// WithUnique adds fields that must be unique. For timeseries tables they are
// folded together with the primary key into one composite constraint.
func WithUnique(fields ...string) Option {
	return func(t *Table) {
		t.uniqueFields = append(t.uniqueFields, fields...)
	}
}

// WithInvariant adds a cross-field invariant.
func WithInvariant(inv Invariant) Option {
	return func(t *Table) {
		t.invariants = append(t.invariants, inv)
	}
}

var identifierRE = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidIdentifier reports whether s can be used as a table or column name.
func ValidIdentifier(s string) bool {
	return len(s) <= 63 && identifierRE.MatchString(s)
}

// reserved columns are added by the repository to every table.
var reserved = []string{"created_at", "updated_at"}

// New builds a table schema.
func New(kind Kind, primaryKey string, columns []Column, opts ...Option) (*Table, error) {
	switch kind {
	case KindRelational, KindNonRelational, KindTimeseries:
	default:
		return nil, fmt.Errorf("unknown table kind %q", kind)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table has no columns")
	}

	t := &Table{
		kind:       kind,
		primaryKey: primaryKey,
		columns:    slices.Clone(columns),
		index:      make(map[string]int, len(columns)),
	}
	for _, opt := range opts {
		opt(t)
	}

	for i, c := range t.columns {
		if !ValidIdentifier(c.Name) {
			return nil, fmt.Errorf("invalid column name %q", c.Name)
		}
		if slices.Contains(reserved, c.Name) {
			return nil, fmt.Errorf("column name %q is reserved", c.Name)
		}
		if c.Type == nil {
			return nil, fmt.Errorf("column %q has no type", c.Name)
		}
		if _, dup := t.index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		t.index[c.Name] = i
	}

	if _, ok := t.index[primaryKey]; !ok {
		return nil, fmt.Errorf("primary key %q is not a column", primaryKey)
	}
	if t.columns[t.index[primaryKey]].Nullable {
		return nil, fmt.Errorf("primary key %q cannot be nullable", primaryKey)
	}
	for _, f := range t.uniqueFields {
		if _, ok := t.index[f]; !ok {
			return nil, fmt.Errorf("unique field %q is not a column", f)
		}
	}
	for _, inv := range t.invariants {
		if inv.Holds == nil {
			return nil, fmt.Errorf("invariant %q has no predicate", inv.Name)
		}
	}
	return t, nil
}

// MustNew is New that panics on error. Intended for package-level schemas.
func MustNew(kind Kind, primaryKey string, columns []Column, opts ...Option) *Table {
	t, err := New(kind, primaryKey, columns, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Table) Kind() Kind             { return t.kind }
func (t *Table) PrimaryKey() string     { return t.primaryKey }
func (t *Table) Columns() []Column      { return slices.Clone(t.columns) }
func (t *Table) UniqueFields() []string { return slices.Clone(t.uniqueFields) }

// ColumnNames returns the column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the column with the given name.
func (t *Table) Column(name string) (Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return Column{}, false
	}
	return t.columns[i], true
}

// ConflictKey returns the columns whose combined uniqueness decides between
// insert and update: the primary key, plus the unique fields for timeseries.
func (t *Table) ConflictKey() []string {
	if t.kind != KindTimeseries {
		return []string{t.primaryKey}
	}
	key := []string{t.primaryKey}
	for _, f := range t.uniqueFields {
		if !slices.Contains(key, f) {
			key = append(key, f)
		}
	}
	return key
}
