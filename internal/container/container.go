// Package container binds validated data to its schema and destination table.
//
// New is the only place validation runs. A *Container is trusted by the
// repository without further checks.
package container

import (
	"fmt"

	"github.com/rickgao/market-data/internal/frame"
	"github.com/rickgao/market-data/internal/schema"
)

// Container is a validated dataset bound to a table schema and a table name.
type Container struct {
	name  string
	table *schema.Table
	data  *schema.Dataset
}

// New validates f against table and returns the container. Validation
// failures are returned as *schema.ValidationError, unwrapped.
func New(name string, table *schema.Table, f *frame.Frame) (*Container, error) {
	if !schema.ValidIdentifier(name) {
		return nil, fmt.Errorf("invalid table name %q", name)
	}
	ds, err := schema.Validate(name, table, f)
	if err != nil {
		return nil, err
	}
	return &Container{name: name, table: table, data: ds}, nil
}

// Name is the destination table.
func (c *Container) Name() string { return c.name }

func (c *Container) Schema() *schema.Table    { return c.table }
func (c *Container) Dataset() *schema.Dataset { return c.data }
func (c *Container) Len() int                 { return c.data.Len() }
func (c *Container) Columns() []string        { return c.data.Columns() }
func (c *Container) ConflictKey() []string    { return c.table.ConflictKey() }

// ColumnTypes maps every column to the backend type chosen by m.
func (c *Container) ColumnTypes(m schema.Mapper) map[string]string {
	types := make(map[string]string)
	for _, col := range c.table.Columns() {
		types[col.Name] = col.Type.Map(m)
	}
	return types
}
