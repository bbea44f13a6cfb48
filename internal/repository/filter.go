package repository

import "fmt"

// Op is a comparison operator usable in a load filter.
type Op string

const (
	Eq   Op = "="
	Gt   Op = ">"
	Lt   Op = "<"
	Ge   Op = ">="
	Le   Op = "<="
	Like Op = "LIKE"
)

func (o Op) valid() bool {
	switch o {
	case Eq, Gt, Lt, Ge, Le, Like:
		return true
	}
	return false
}

// Filter is a single predicate. Filters in LoadOptions are combined with AND.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Where is shorthand for a Filter.
func Where(column string, op Op, value any) Filter {
	return Filter{Column: column, Op: op, Value: value}
}

func (f Filter) String() string {
	return fmt.Sprintf("%s %s %v", f.Column, f.Op, f.Value)
}

// LoadOptions narrows a Load. The zero value loads every row.
type LoadOptions struct {
	Filters []Filter

	// OrderBy sorts ascending by the given columns.
	OrderBy []string

	// Limit caps the number of rows when positive.
	Limit int
}
