package schema

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Type is a semantic column type. The set of types is closed: every Type maps
// itself through a Mapper, which has one method per semantic type, so a backend
// that forgets a type does not compile.
type Type interface {
	// Name is the short name used in failure cases and logs.
	Name() string

	// Coerce converts v into the canonical Go value for the type.
	// It never receives nil.
	Coerce(v any) (any, error)

	// Map returns the backend column type chosen by m.
	Map(m Mapper) string

	sealed()
}

// Mapper maps each semantic type to a backend column type.
type Mapper interface {
	Integer() string
	Float32() string
	Float64() string
	Boolean() string
	Text() string
	Date() string
	Timestamp() string
	Category(values []string) string
}

// Canonical Go values stored in a Dataset:
//
//	Integer   int64
//	Float32   float32
//	Float64   float64
//	Boolean   bool
//	Text      string
//	Category  string
//	Date      time.Time (midnight UTC)
//	Timestamp time.Time (UTC)
var (
	Integer   Type = integerType{}
	Float32   Type = float32Type{}
	Float64   Type = float64Type{}
	Boolean   Type = booleanType{}
	Text      Type = textType{}
	Date      Type = dateType{}
	Timestamp Type = timestampType{}
)

// Category returns a bounded categorical type whose domain is values.
func Category(values ...string) Type {
	return CategoryType{values: slices.Clone(values)}
}

// errCoerce marks a value that cannot be converted losslessly.
var errCoerce = errors.New("cannot coerce")

func coerceErr(v any, to string) error {
	return fmt.Errorf("%w %T(%v) to %s", errCoerce, v, v, to)
}

type integerType struct{}

func (integerType) Name() string        { return "int64" }
func (integerType) Map(m Mapper) string { return m.Integer() }
func (integerType) sealed()             {}
func (t integerType) Coerce(v any) (any, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, coerceErr(v, t.Name())
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		// float64(math.MaxInt64) rounds up to 2^63, so the upper bound is exclusive.
		if f != math.Trunc(f) || f >= 0x1p63 || f < -0x1p63 {
			return nil, coerceErr(v, t.Name())
		}
		return int64(f), nil
	case reflect.String:
		n, err := strconv.ParseInt(strings.TrimSpace(rv.String()), 10, 64)
		if err != nil {
			return nil, coerceErr(v, t.Name())
		}
		return n, nil
	}
	return nil, coerceErr(v, t.Name())
}

func toFloat(v any, to string) (float64, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := rv.Int()
		f := float64(n)
		if f >= 0x1p63 || int64(f) != n {
			return 0, coerceErr(v, to)
		}
		return f, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		f := float64(u)
		if f >= 0x1p64 || uint64(f) != u {
			return 0, coerceErr(v, to)
		}
		return f, nil
	case reflect.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(rv.String()), 64)
		if err != nil {
			return 0, coerceErr(v, to)
		}
		return f, nil
	}
	return 0, coerceErr(v, to)
}

type float64Type struct{}

func (float64Type) Name() string        { return "float64" }
func (float64Type) Map(m Mapper) string { return m.Float64() }
func (float64Type) sealed()             {}
func (t float64Type) Coerce(v any) (any, error) {
	f, err := toFloat(v, t.Name())
	if err != nil {
		return nil, err
	}
	return f, nil
}

type float32Type struct{}

func (float32Type) Name() string        { return "float32" }
func (float32Type) Map(m Mapper) string { return m.Float32() }
func (float32Type) sealed()             {}
func (t float32Type) Coerce(v any) (any, error) {
	f, err := toFloat(v, t.Name())
	if err != nil {
		return nil, err
	}
	if !math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32 {
		return nil, coerceErr(v, t.Name())
	}
	return float32(f), nil
}

type booleanType struct{}

func (booleanType) Name() string        { return "bool" }
func (booleanType) Map(m Mapper) string { return m.Boolean() }
func (booleanType) sealed()             {}
func (t booleanType) Coerce(v any) (any, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		b, err := strconv.ParseBool(strings.TrimSpace(rv.String()))
		if err != nil {
			return nil, coerceErr(v, t.Name())
		}
		return b, nil
	}
	return nil, coerceErr(v, t.Name())
}

func toString(v any, to string) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.String {
		return rv.String(), nil
	}
	return "", coerceErr(v, to)
}

type textType struct{}

func (textType) Name() string        { return "string" }
func (textType) Map(m Mapper) string { return m.Text() }
func (textType) sealed()             {}
func (t textType) Coerce(v any) (any, error) {
	s, err := toString(v, t.Name())
	if err != nil {
		return nil, err
	}
	return s, nil
}

// CategoryType is a text type restricted to a fixed domain.
type CategoryType struct {
	values []string
}

func (CategoryType) Name() string          { return "category" }
func (c CategoryType) Map(m Mapper) string { return m.Category(c.Values()) }
func (CategoryType) sealed()               {}
func (c CategoryType) Coerce(v any) (any, error) {
	s, err := toString(v, c.Name())
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Values returns the domain of the category.
func (c CategoryType) Values() []string {
	return slices.Clone(c.values)
}

// Contains reports whether s is in the domain.
func (c CategoryType) Contains(s string) bool {
	return slices.Contains(c.values, s)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

type timestampType struct{}

func (timestampType) Name() string        { return "timestamp[UTC]" }
func (timestampType) Map(m Mapper) string { return m.Timestamp() }
func (timestampType) sealed()             {}
func (t timestampType) Coerce(v any) (any, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case *time.Time:
		if x != nil {
			return x.UTC(), nil
		}
	}
	if s, err := toString(v, t.Name()); err == nil {
		s = strings.TrimSpace(s)
		for _, layout := range timestampLayouts {
			// Layouts without a zone parse as UTC.
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), nil
			}
		}
	}
	return nil, coerceErr(v, t.Name())
}

type dateType struct{}

func (dateType) Name() string        { return "date" }
func (dateType) Map(m Mapper) string { return m.Date() }
func (dateType) sealed()             {}
func (t dateType) Coerce(v any) (any, error) {
	switch x := v.(type) {
	case time.Time:
		return civilDate(x), nil
	case *time.Time:
		if x != nil {
			return civilDate(*x), nil
		}
	}
	if s, err := toString(v, t.Name()); err == nil {
		if d, err := time.Parse(time.DateOnly, strings.TrimSpace(s)); err == nil {
			return d, nil
		}
	}
	return nil, coerceErr(v, t.Name())
}

// civilDate keeps the calendar date of t in its own location.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
