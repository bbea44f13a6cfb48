package repository

import (
	"strconv"

	"github.com/rickgao/market-data/internal/schema"
)

// hashPartitions is the number of hash partitions per secondary dimension.
const hashPartitions = 4

type timescale struct{}

// Timescale returns the dialect for PostgreSQL with the TimescaleDB extension.
func Timescale() Dialect { return timescale{} }

func (timescale) Integer() string          { return "BIGINT" }
func (timescale) Float32() string          { return "REAL" }
func (timescale) Float64() string          { return "DOUBLE PRECISION" }
func (timescale) Boolean() string          { return "BOOLEAN" }
func (timescale) Text() string             { return "TEXT" }
func (timescale) Date() string             { return "DATE" }
func (timescale) Timestamp() string        { return "TIMESTAMPTZ" }
func (timescale) Category([]string) string { return "TEXT" }

func (timescale) Name() string             { return "timescale" }
func (timescale) Placeholder(n int) string { return "$" + strconv.Itoa(n) }
func (timescale) MaxParams() int           { return 65535 }
func (timescale) AuditType() string        { return "TIMESTAMPTZ" }
func (timescale) Now() string              { return "now()" }
func (timescale) InsertedMarker() string   { return "(xmax = 0)" }

func (timescale) TableExists() string {
	return `SELECT EXISTS (
		SELECT 1 FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = $1
	)`
}

func (timescale) TableColumns() string {
	return `SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`
}

func (timescale) Lock(table string) []Statement {
	return []Statement{{SQL: "SELECT pg_advisory_xact_lock(hashtext($1))", Args: []any{table}}}
}

const updatedAtFunction = `CREATE OR REPLACE FUNCTION update_updated_at_column()
RETURNS TRIGGER AS $$
BEGIN
	NEW.updated_at = now();
	RETURN NEW;
END;
$$ LANGUAGE plpgsql`

func (timescale) Provision(table string, t *schema.Table) []Statement {
	stmts := []Statement{
		// The trigger function is shared by every table.
		{SQL: "SELECT pg_advisory_xact_lock(hashtext($1))", Args: []any{"update_updated_at_column"}},
		{SQL: updatedAtFunction},
		{SQL: "CREATE OR REPLACE TRIGGER " + quote(triggerName(table)) +
			" BEFORE UPDATE ON " + quote(table) +
			" FOR EACH ROW EXECUTE FUNCTION update_updated_at_column()"},
	}
	if t.Kind() != schema.KindTimeseries {
		return stmts
	}

	stmts = append(stmts, Statement{
		SQL:  "SELECT create_hypertable($1::regclass, by_range($2::name), if_not_exists => TRUE)",
		Args: []any{table, t.PrimaryKey()},
	})
	for _, f := range t.ConflictKey()[1:] {
		stmts = append(stmts, Statement{
			SQL:  "SELECT add_dimension($1::regclass, by_hash($2::name, $3::integer), if_not_exists => TRUE)",
			Args: []any{table, f, hashPartitions},
		})
	}
	return stmts
}

func triggerName(table string) string {
	return "update_" + table + "_updated_at"
}
