package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/rickgao/market-data/internal/container"
	"github.com/rickgao/market-data/internal/frame"
	"github.com/rickgao/market-data/internal/schema"
)

// ConnProvider hands out dedicated connections. *sql.DB satisfies it.
type ConnProvider interface {
	Conn(ctx context.Context) (*sql.Conn, error)
}

// Repository stores validated containers in a SQL backend.
type Repository struct {
	db      ConnProvider
	dialect Dialect
	logger  *slog.Logger
}

// New creates a Repository.
func New(db ConnProvider, dialect Dialect, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:      db,
		dialect: dialect,
		logger:  logger,
	}
}

// Dialect returns the backend dialect.
func (r *Repository) Dialect() Dialect { return r.dialect }

// withTx runs fn in a transaction on a dedicated connection. The transaction
// commits only when fn returns nil; the connection is always released.
func (r *Repository) withTx(ctx context.Context, conn *sql.Conn, fn func(tx *sql.Tx) error) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// EnsureTable creates the destination table of c with its trigger and
// partitioning if it does not exist yet. It is safe to call concurrently.
func (r *Repository) EnsureTable(ctx context.Context, c *container.Container) error {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return &ProvisionError{Table: c.Name(), Err: fmt.Errorf("acquire connection: %w", err)}
	}
	defer conn.Close()

	return r.ensure(ctx, conn, c)
}

func (r *Repository) ensure(ctx context.Context, conn *sql.Conn, c *container.Container) error {
	name := c.Name()
	exists, err := r.tableExists(ctx, conn, name)
	if err != nil {
		return &ProvisionError{Table: name, Err: err}
	}
	if exists {
		return nil
	}

	err = r.withTx(ctx, conn, func(tx *sql.Tx) error {
		stmts := r.dialect.Lock(name)
		stmts = append(stmts, Statement{SQL: createTableSQL(r.dialect, name, c.Schema())})
		stmts = append(stmts, r.dialect.Provision(name, c.Schema())...)
		for _, s := range stmts {
			if _, err := tx.ExecContext(ctx, s.SQL, s.Args...); err != nil {
				return fmt.Errorf("exec %q: %w", firstLine(s.SQL), err)
			}
		}
		return nil
	})
	if err != nil {
		return &ProvisionError{Table: name, Err: err}
	}

	r.logger.Info("table provisioned",
		"table", name,
		"kind", c.Schema().Kind(),
		"dialect", r.dialect.Name(),
	)
	return nil
}

func (r *Repository) tableExists(ctx context.Context, conn *sql.Conn, name string) (bool, error) {
	var exists bool
	if err := conn.QueryRowContext(ctx, r.dialect.TableExists(), name).Scan(&exists); err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return exists, nil
}

// Save appends every row of c with bulk inserts in one transaction. Only
// provisioning failures are returned as errors; write failures are reported
// in the result.
func (r *Repository) Save(ctx context.Context, c *container.Container) (SaveResult, error) {
	if c.Len() == 0 {
		return saveError("dataset is empty"), nil
	}

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return saveError(fmt.Sprintf("acquire connection: %v", err)), nil
	}
	defer conn.Close()

	if err := r.ensure(ctx, conn, c); err != nil {
		return SaveResult{}, err
	}

	start := time.Now()
	var affected int64
	err = r.withTx(ctx, conn, func(tx *sql.Tx) error {
		return r.writeChunks(c, r.insertBuilder(c), func(q string, args []any) error {
			n, err := execCount(ctx, tx, q, args)
			affected += n
			return err
		})
	})
	if err != nil {
		r.logger.Warn("save failed", "table", c.Name(), "rows", c.Len(), "error", err)
		return saveError(fmt.Sprintf("save %s: %v", c.Name(), err)), nil
	}

	r.logger.Debug("saved rows",
		"table", c.Name(),
		"rows", affected,
		"duration", time.Since(start),
	)
	return SaveResult{Status: StatusSuccess, RowsAffected: affected}, nil
}

// writeChunks splits the dataset into statements under the dialect's bind
// parameter limit. build renders the statement for a chunk of n rows.
func (r *Repository) writeChunks(c *container.Container, build func(n int) string, exec func(q string, args []any) error) error {
	ds := c.Dataset()
	width := len(ds.Columns())
	per := chunkRows(r.dialect, width)

	for lo := 0; lo < ds.Len(); lo += per {
		hi := min(lo+per, ds.Len())
		args := make([]any, 0, (hi-lo)*width)
		for i := lo; i < hi; i++ {
			for _, v := range ds.Values(i) {
				args = append(args, bindValue(v))
			}
		}
		if err := exec(build(hi-lo), args); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) insertBuilder(c *container.Container) func(int) string {
	columns := c.Columns()
	return func(n int) string { return insertSQL(r.dialect, c.Name(), columns, n) }
}

func (r *Repository) upsertBuilder(c *container.Container) func(int) string {
	columns, key := c.Columns(), c.ConflictKey()
	return func(n int) string { return upsertSQL(r.dialect, c.Name(), columns, key, n) }
}

func execCount(ctx context.Context, tx *sql.Tx, q string, args []any) (int64, error) {
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// bindValue widens float32 so every driver accepts it.
func bindValue(v any) any {
	if f, ok := v.(float32); ok {
		return float64(f)
	}
	return v
}

// Upsert inserts the rows of c, updating every non-key column of rows whose
// conflict key already exists. Only provisioning failures are returned as
// errors; write failures are reported in the result with zero counts.
func (r *Repository) Upsert(ctx context.Context, c *container.Container) (UpsertResult, error) {
	if c.Len() == 0 {
		return upsertError("dataset is empty"), nil
	}

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return upsertError(fmt.Sprintf("acquire connection: %v", err)), nil
	}
	defer conn.Close()

	if err := r.ensure(ctx, conn, c); err != nil {
		return UpsertResult{}, err
	}

	start := time.Now()
	var res UpsertResult
	err = r.withTx(ctx, conn, func(tx *sql.Tx) error {
		var err error
		if r.dialect.InsertedMarker() != "" {
			res, err = r.upsertExact(ctx, tx, c)
		} else {
			res, err = r.upsertEstimated(ctx, tx, c)
		}
		return err
	})
	if err != nil {
		r.logger.Warn("upsert failed", "table", c.Name(), "rows", c.Len(), "error", err)
		return upsertError(fmt.Sprintf("upsert %s: %v", c.Name(), err)), nil
	}

	res.Status = StatusSuccess
	r.logger.Debug("upserted rows",
		"table", c.Name(),
		"inserted", res.RowsInserted,
		"updated", res.RowsUpdated,
		"exact", res.Exact,
		"duration", time.Since(start),
	)
	return res, nil
}

// upsertExact classifies each row from the dialect's RETURNING marker.
func (r *Repository) upsertExact(ctx context.Context, tx *sql.Tx, c *container.Container) (UpsertResult, error) {
	res := UpsertResult{Exact: true}
	err := r.writeChunks(c, r.upsertBuilder(c), func(q string, args []any) error {
		rows, err := tx.QueryContext(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var inserted bool
			if err := rows.Scan(&inserted); err != nil {
				return err
			}
			if inserted {
				res.RowsInserted++
			} else {
				res.RowsUpdated++
			}
		}
		return rows.Err()
	})
	return res, err
}

// upsertEstimated counts rows of the batch whose updated_at is at or after
// the write started as updates. Rows of the batch touched by other writers in
// the same window are miscounted.
func (r *Repository) upsertEstimated(ctx context.Context, tx *sql.Tx, c *container.Container) (UpsertResult, error) {
	var since string
	if err := tx.QueryRowContext(ctx, "SELECT "+r.dialect.Now()).Scan(&since); err != nil {
		return UpsertResult{}, fmt.Errorf("read clock: %w", err)
	}

	var total int64
	err := r.writeChunks(c, r.upsertBuilder(c), func(q string, args []any) error {
		n, err := execCount(ctx, tx, q, args)
		total += n
		return err
	})
	if err != nil {
		return UpsertResult{}, err
	}

	updated, err := r.countUpdated(ctx, tx, c, since)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("count updated rows: %w", err)
	}
	updated = min(updated, total)
	return UpsertResult{RowsInserted: total - updated, RowsUpdated: updated}, nil
}

// countUpdated sums countUpdatedSQL over the batch's conflict keys, chunked
// like the writes.
func (r *Repository) countUpdated(ctx context.Context, tx *sql.Tx, c *container.Container, since string) (int64, error) {
	ds, key := c.Dataset(), c.ConflictKey()
	per := max((r.dialect.MaxParams()-1)/len(key), 1)

	var updated int64
	for lo := 0; lo < ds.Len(); lo += per {
		hi := min(lo+per, ds.Len())
		args := make([]any, 0, 1+(hi-lo)*len(key))
		args = append(args, since)
		for i := lo; i < hi; i++ {
			for _, col := range key {
				v, _ := ds.Value(i, col)
				args = append(args, bindValue(v))
			}
		}
		var n int64
		if err := tx.QueryRowContext(ctx, countUpdatedSQL(r.dialect, c.Name(), key, hi-lo), args...).Scan(&n); err != nil {
			return 0, err
		}
		updated += n
	}
	return updated, nil
}

// Load reads rows from an existing table. Filter and order columns must exist
// in the table; values are bound as parameters.
func (r *Repository) Load(ctx context.Context, name string, opts *LoadOptions) (*frame.Frame, error) {
	if !schema.ValidIdentifier(name) {
		return nil, fmt.Errorf("load: invalid table name %q", name)
	}

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	exists, err := r.tableExists(ctx, conn, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &NotFoundError{Table: name}
	}

	if opts != nil {
		if err := r.checkOptions(ctx, conn, name, opts); err != nil {
			return nil, err
		}
	}

	q, args := selectSQL(r.dialect, name, opts)
	rows, err := conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	defer rows.Close()

	f, err := scanFrame(rows)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	r.logger.Debug("loaded rows", "table", name, "rows", f.Len())
	return f, nil
}

func (r *Repository) checkOptions(ctx context.Context, conn *sql.Conn, name string, opts *LoadOptions) error {
	columns, err := r.tableColumns(ctx, conn, name)
	if err != nil {
		return err
	}
	for _, f := range opts.Filters {
		if !f.Op.valid() {
			return fmt.Errorf("load %s: unsupported operator %q", name, f.Op)
		}
		if !slices.Contains(columns, f.Column) {
			return fmt.Errorf("load %s: unknown filter column %q", name, f.Column)
		}
	}
	for _, c := range opts.OrderBy {
		if !slices.Contains(columns, c) {
			return fmt.Errorf("load %s: unknown order column %q", name, c)
		}
	}
	if opts.Limit < 0 {
		return fmt.Errorf("load %s: negative limit %d", name, opts.Limit)
	}
	return nil
}

func (r *Repository) tableColumns(ctx context.Context, conn *sql.Conn, name string) ([]string, error) {
	rows, err := conn.QueryContext(ctx, r.dialect.TableColumns(), name)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", name, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		columns = append(columns, c)
	}
	return columns, rows.Err()
}

func scanFrame(rows *sql.Rows) (*frame.Frame, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	f, err := frame.New(columns...)
	if err != nil {
		return nil, err
	}

	for rows.Next() {
		vals := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			vals[i] = normalize(v)
		}
		if err := f.Append(vals...); err != nil {
			return nil, err
		}
	}
	return f, rows.Err()
}

func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC()
	}
	return v
}

func firstLine(s string) string {
	for i, ch := range s {
		if ch == '\n' {
			return s[:i]
		}
	}
	return s
}

// IsProvisionError reports whether err came from table provisioning.
func IsProvisionError(err error) bool {
	var pe *ProvisionError
	return errors.As(err, &pe)
}
