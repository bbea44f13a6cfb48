package repository

import (
	"strconv"

	"github.com/rickgao/market-data/internal/schema"
)

// sqliteNow has millisecond precision and sorts lexicographically.
const sqliteNow = "strftime('%Y-%m-%d %H:%M:%f', 'now')"

type sqlite struct{}

// SQLite returns the dialect for an embedded SQLite database.
func SQLite() Dialect { return sqlite{} }

func (sqlite) Integer() string          { return "INTEGER" }
func (sqlite) Float32() string          { return "REAL" }
func (sqlite) Float64() string          { return "REAL" }
func (sqlite) Boolean() string          { return "BOOLEAN" }
func (sqlite) Text() string             { return "TEXT" }
func (sqlite) Date() string             { return "DATE" }
func (sqlite) Timestamp() string        { return "TIMESTAMP" }
func (sqlite) Category([]string) string { return "TEXT" }

func (sqlite) Name() string             { return "sqlite" }
func (sqlite) Placeholder(n int) string { return "?" + strconv.Itoa(n) }
func (sqlite) MaxParams() int           { return 32766 }
func (sqlite) AuditType() string        { return "TIMESTAMP" }
func (sqlite) Now() string              { return sqliteNow }

// InsertedMarker relies on the conflict branch always setting updated_at,
// so only rows inserted by the statement still hold NULL.
func (sqlite) InsertedMarker() string { return "(" + quote(updatedAt) + " IS NULL)" }

func (sqlite) TableExists() string {
	return "SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?1)"
}

func (sqlite) TableColumns() string {
	return "SELECT name FROM pragma_table_info(?1) ORDER BY cid"
}

// Lock is empty: SQLite serializes writers on the database file.
func (sqlite) Lock(string) []Statement { return nil }

func (sqlite) Provision(table string, _ *schema.Table) []Statement {
	// The WHEN clause skips updates that already set updated_at themselves.
	return []Statement{{SQL: "CREATE TRIGGER IF NOT EXISTS " + quote(triggerName(table)) +
		" AFTER UPDATE ON " + quote(table) +
		" FOR EACH ROW WHEN NEW.updated_at IS OLD.updated_at BEGIN UPDATE " + quote(table) +
		" SET updated_at = " + sqliteNow + " WHERE rowid = NEW.rowid; END"}}
}
