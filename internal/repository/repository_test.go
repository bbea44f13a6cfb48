package repository

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/market-data/internal/container"
	"github.com/rickgao/market-data/internal/frame"
	"github.com/rickgao/market-data/internal/model"
	"github.com/rickgao/market-data/internal/schema"
)

var t0 = time.Date(2021, 1, 1, 9, 30, 0, 0, time.UTC)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db")+"?_txlock=immediate")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	return New(openSQLite(t), SQLite(), nil)
}

type bar struct {
	symbol string
	ts     time.Time
	price  float64
	volume float64
}

func barContainer(t *testing.T, bars ...bar) *container.Container {
	t.Helper()
	f := frame.MustNew("timestamp", "broker", "symbol", "timeframe", "open", "high", "low", "close", "volume")
	for _, b := range bars {
		f.MustAppend(b.ts, "Alpaca", b.symbol, "1m", b.price, b.price, b.price, b.price, b.volume)
	}
	c, err := container.New(model.BarTableName, model.BarTable, f)
	require.NoError(t, err)
	return c
}

func scenarioBars() []bar {
	return []bar{
		{"AAPL", t0, 100.0, 1000.0},
		{"GOOG", t0.Add(time.Minute), 101.0, 3000.0},
	}
}

// bySymbol indexes loaded rows by symbol.
func bySymbol(t *testing.T, f *frame.Frame) map[string]map[string]any {
	t.Helper()
	out := make(map[string]map[string]any)
	for i := range f.Len() {
		rec := f.Record(i)
		sym, ok := rec["symbol"].(string)
		require.True(t, ok, "symbol is %T", rec["symbol"])
		out[sym] = rec
	}
	return out
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	c := barContainer(t, scenarioBars()...)

	res, err := repo.Save(ctx, c)
	require.NoError(t, err)
	require.True(t, res.OK(), res.Message)
	assert.Equal(t, int64(2), res.RowsAffected)

	f, err := repo.Load(ctx, model.BarTableName, nil)
	require.NoError(t, err)
	require.Equal(t, 2, f.Len())
	assert.True(t, f.Has(createdAt))
	assert.True(t, f.Has(updatedAt))

	rows := bySymbol(t, f)
	ds := c.Dataset()
	for i := range ds.Len() {
		want := ds.Row(i)
		got := rows[want.String("symbol")]
		require.NotNil(t, got)
		for _, col := range ds.Columns() {
			wv, gv := want.Get(col), got[col]
			if wt, ok := wv.(time.Time); ok {
				gt, ok := gv.(time.Time)
				require.True(t, ok, "%s is %T", col, gv)
				assert.True(t, wt.Equal(gt), "%s = %v, want %v", col, gt, wt)
				continue
			}
			assert.Equal(t, wv, gv, "column %s", col)
		}
		assert.NotNil(t, got[createdAt])
		assert.Nil(t, got[updatedAt])
	}
}

func TestUpsertScenario(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	res, err := repo.Save(ctx, barContainer(t, scenarioBars()...))
	require.NoError(t, err)
	require.True(t, res.OK(), res.Message)

	up, err := repo.Upsert(ctx, barContainer(t, bar{"AAPL", t0, 100.0, 1500.0}))
	require.NoError(t, err)
	require.True(t, up.OK(), up.Message)
	assert.Equal(t, int64(0), up.RowsInserted)
	assert.Equal(t, int64(1), up.RowsUpdated)
	assert.True(t, up.Exact)

	f, err := repo.Load(ctx, model.BarTableName, nil)
	require.NoError(t, err)
	require.Equal(t, 2, f.Len())
	rows := bySymbol(t, f)
	assert.Equal(t, 1500.0, rows["AAPL"]["volume"])
	assert.Equal(t, 3000.0, rows["GOOG"]["volume"])
	assert.NotNil(t, rows["AAPL"][updatedAt])
	assert.Nil(t, rows["GOOG"][updatedAt])

	f, err = repo.Load(ctx, model.BarTableName, &LoadOptions{Filters: []Filter{Where("symbol", Eq, "AAPL")}})
	require.NoError(t, err)
	assert.Equal(t, 1, f.Len())

	f, err = repo.Load(ctx, model.BarTableName, &LoadOptions{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, f.Len())
}

func TestUpsertIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	c := barContainer(t, scenarioBars()...)

	first, err := repo.Upsert(ctx, c)
	require.NoError(t, err)
	require.True(t, first.OK(), first.Message)
	assert.Equal(t, int64(2), first.RowsInserted)
	assert.Equal(t, int64(0), first.RowsUpdated)

	second, err := repo.Upsert(ctx, c)
	require.NoError(t, err)
	require.True(t, second.OK(), second.Message)
	assert.Equal(t, int64(0), second.RowsInserted)
	assert.Equal(t, int64(2), second.RowsUpdated)

	f, err := repo.Load(ctx, model.BarTableName, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Len())
}

func TestUpsertNewRowAfterUpdate(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	aapl := barContainer(t, bar{"AAPL", t0, 100, 1000})
	_, err := repo.Upsert(ctx, aapl)
	require.NoError(t, err)

	for i := range 50 {
		up, err := repo.Upsert(ctx, aapl)
		require.NoError(t, err)
		require.True(t, up.OK(), up.Message)
		require.Equal(t, int64(1), up.RowsUpdated, "update %d", i)

		up, err = repo.Upsert(ctx, barContainer(t, bar{"GOOG", t0.Add(time.Duration(i) * time.Minute), 101, 3000}))
		require.NoError(t, err)
		require.True(t, up.OK(), up.Message)
		require.Equal(t, int64(1), up.RowsInserted, "insert %d", i)
		require.Equal(t, int64(0), up.RowsUpdated, "insert %d", i)
	}
}

// noMarker hides the dialect's RETURNING marker so upserts fall back to the
// updated_at estimate.
type noMarker struct{ Dialect }

func (noMarker) InsertedMarker() string { return "" }

func TestUpsertEstimatedCountsOnlyTheBatch(t *testing.T) {
	ctx := context.Background()
	repo := New(openSQLite(t), noMarker{SQLite()}, nil)

	aapl := barContainer(t, bar{"AAPL", t0, 100, 1000})
	first, err := repo.Upsert(ctx, aapl)
	require.NoError(t, err)
	require.True(t, first.OK(), first.Message)
	assert.False(t, first.Exact)
	assert.Equal(t, int64(1), first.RowsInserted)

	for i := range 20 {
		up, err := repo.Upsert(ctx, aapl)
		require.NoError(t, err)
		require.Equal(t, int64(1), up.RowsUpdated, "update %d", i)

		up, err = repo.Upsert(ctx, barContainer(t, bar{"GOOG", t0.Add(time.Duration(i) * time.Minute), 101, 3000}))
		require.NoError(t, err)
		require.True(t, up.OK(), up.Message)
		require.Equal(t, int64(1), up.RowsInserted, "insert %d", i)
		require.Equal(t, int64(0), up.RowsUpdated, "insert %d", i)
	}

	mixed, err := repo.Upsert(ctx, barContainer(t,
		bar{"AAPL", t0, 102, 1100},
		bar{"MSFT", t0, 300, 500},
	))
	require.NoError(t, err)
	require.True(t, mixed.OK(), mixed.Message)
	assert.Equal(t, int64(1), mixed.RowsInserted)
	assert.Equal(t, int64(1), mixed.RowsUpdated)
}

func TestUpsertRelational(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	assets := func(name string, tradable bool) *container.Container {
		f := frame.MustNew("broker", "name", "symbol", "exchange", "asset_class", "tradable", "status").
			MustAppend("Alpaca", name, "AAPL", "NASDAQ", "Equity", tradable, "Active").
			MustAppend("Alpaca", "Microsoft-MSFT", "MSFT", "NASDAQ", "Equity", true, "Active")
		c, err := container.New(model.AssetTableName, model.AssetTable, f)
		require.NoError(t, err)
		return c
	}

	res, err := repo.Upsert(ctx, assets("Apple-AAPL", true))
	require.NoError(t, err)
	require.True(t, res.OK(), res.Message)
	assert.Equal(t, int64(2), res.RowsInserted)

	res, err = repo.Upsert(ctx, assets("Apple Inc-AAPL", false))
	require.NoError(t, err)
	require.True(t, res.OK(), res.Message)
	assert.Equal(t, int64(2), res.RowsUpdated)

	f, err := repo.Load(ctx, model.AssetTableName, &LoadOptions{Filters: []Filter{Where("symbol", Eq, "AAPL")}})
	require.NoError(t, err)
	require.Equal(t, 1, f.Len())
	rec := f.Record(0)
	assert.Equal(t, "Apple Inc-AAPL", rec["name"])
	assert.Equal(t, false, rec["tradable"])
}

func TestSaveEmpty(t *testing.T) {
	repo := newTestRepo(t)
	c := barContainer(t)

	res, err := repo.Save(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, "dataset is empty", res.Message)

	up, err := repo.Upsert(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, StatusError, up.Status)
	assert.Zero(t, up.RowsInserted+up.RowsUpdated)
}

func TestSaveConflictIsReported(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	c := barContainer(t, scenarioBars()...)

	res, err := repo.Save(ctx, c)
	require.NoError(t, err)
	require.True(t, res.OK(), res.Message)

	res, err = repo.Save(ctx, c)
	require.NoError(t, err, "write failures must not be returned as errors")
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Message, "UNIQUE")
	assert.Zero(t, res.RowsAffected)

	f, err := repo.Load(ctx, model.BarTableName, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Len())
}

func TestLoadFilters(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	bars := []bar{
		{"AAPL", t0, 100, 1000},
		{"AAPL", t0.Add(time.Minute), 101, 1100},
		{"AMZN", t0.Add(2 * time.Minute), 102, 1200},
		{"GOOG", t0.Add(3 * time.Minute), 103, 1300},
	}
	res, err := repo.Save(ctx, barContainer(t, bars...))
	require.NoError(t, err)
	require.True(t, res.OK(), res.Message)

	tests := []struct {
		name string
		opts LoadOptions
		want int
	}{
		{"no filter", LoadOptions{}, 4},
		{"eq", LoadOptions{Filters: []Filter{Where("symbol", Eq, "AAPL")}}, 2},
		{"gt", LoadOptions{Filters: []Filter{Where("volume", Gt, 1100.0)}}, 2},
		{"ge", LoadOptions{Filters: []Filter{Where("volume", Ge, 1100.0)}}, 3},
		{"lt", LoadOptions{Filters: []Filter{Where("open", Lt, 101.0)}}, 1},
		{"le", LoadOptions{Filters: []Filter{Where("open", Le, 101.0)}}, 2},
		{"like", LoadOptions{Filters: []Filter{Where("symbol", Like, "A%")}}, 3},
		{"and", LoadOptions{Filters: []Filter{Where("symbol", Like, "A%"), Where("volume", Gt, 1000.0)}}, 2},
		{"limit", LoadOptions{Limit: 3}, 3},
		{"filter and limit", LoadOptions{Filters: []Filter{Where("symbol", Eq, "AAPL")}, Limit: 1}, 1},
		{"injection attempt is a value", LoadOptions{Filters: []Filter{Where("symbol", Eq, "AAPL' OR '1'='1")}}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := repo.Load(ctx, model.BarTableName, &tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Len())
		})
	}

	t.Run("order by", func(t *testing.T) {
		f, err := repo.Load(ctx, model.BarTableName, &LoadOptions{OrderBy: []string{"volume"}, Limit: 1})
		require.NoError(t, err)
		require.Equal(t, 1, f.Len())
		v, _ := f.Value(0, "volume")
		assert.Equal(t, 1000.0, v)
	})
}

func TestLoadErrors(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	res, err := repo.Save(ctx, barContainer(t, scenarioBars()...))
	require.NoError(t, err)
	require.True(t, res.OK(), res.Message)

	t.Run("missing table", func(t *testing.T) {
		_, err := repo.Load(ctx, "missing", nil)
		require.ErrorIs(t, err, ErrNotFound)
		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "missing", nf.Table)
	})

	t.Run("invalid table name", func(t *testing.T) {
		_, err := repo.Load(ctx, `bars"; DROP TABLE bars; --`, nil)
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrNotFound))
	})

	t.Run("unknown filter column", func(t *testing.T) {
		_, err := repo.Load(ctx, model.BarTableName, &LoadOptions{Filters: []Filter{Where("price", Eq, 1)}})
		require.Error(t, err)
	})

	t.Run("unsupported operator", func(t *testing.T) {
		_, err := repo.Load(ctx, model.BarTableName, &LoadOptions{Filters: []Filter{{Column: "symbol", Op: "<>", Value: "x"}}})
		require.Error(t, err)
	})

	t.Run("unknown order column", func(t *testing.T) {
		_, err := repo.Load(ctx, model.BarTableName, &LoadOptions{OrderBy: []string{"nope"}})
		require.Error(t, err)
	})

	t.Run("negative limit", func(t *testing.T) {
		_, err := repo.Load(ctx, model.BarTableName, &LoadOptions{Limit: -1})
		require.Error(t, err)
	})
}

func TestEnsureTableIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	repo := New(db, SQLite(), nil)
	c := barContainer(t, scenarioBars()...)

	require.NoError(t, repo.EnsureTable(ctx, c))
	require.NoError(t, repo.EnsureTable(ctx, c))

	conn, err := db.Conn(ctx)
	require.NoError(t, err)
	defer conn.Close()
	cols, err := repo.tableColumns(ctx, conn, model.BarTableName)
	require.NoError(t, err)
	assert.Equal(t, append(model.BarTable.ColumnNames(), createdAt, updatedAt), cols)
}

// smallBatches forces several statements per write.
type smallBatches struct{ Dialect }

func (smallBatches) MaxParams() int { return 25 }

func TestWritesAreChunked(t *testing.T) {
	ctx := context.Background()
	repo := New(openSQLite(t), smallBatches{SQLite()}, nil)

	var bars []bar
	for i := range 9 {
		bars = append(bars, bar{"AAPL", t0.Add(time.Duration(i) * time.Minute), 100 + float64(i), 1000})
	}
	c := barContainer(t, bars...)

	res, err := repo.Save(ctx, c)
	require.NoError(t, err)
	require.True(t, res.OK(), res.Message)
	assert.Equal(t, int64(9), res.RowsAffected)

	up, err := repo.Upsert(ctx, c)
	require.NoError(t, err)
	require.True(t, up.OK(), up.Message)
	assert.Equal(t, int64(9), up.RowsUpdated)
	assert.Equal(t, int64(0), up.RowsInserted)
}

// brokenProvision fails after the table was created, inside the same transaction.
type brokenProvision struct{ Dialect }

func (brokenProvision) Provision(string, *schema.Table) []Statement {
	return []Statement{{SQL: "CREATE TRIGGER broken"}}
}

func TestProvisionFailure(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	repo := New(db, brokenProvision{SQLite()}, nil)

	_, err := repo.Save(ctx, barContainer(t, scenarioBars()...))
	var pe *ProvisionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, model.BarTableName, pe.Table)
	assert.True(t, IsProvisionError(err))

	_, err = New(db, SQLite(), nil).Load(ctx, model.BarTableName, nil)
	assert.ErrorIs(t, err, ErrNotFound, "failed provisioning must not leave a table behind")
}

type failingConns struct{}

func (failingConns) Conn(context.Context) (*sql.Conn, error) {
	return nil, errors.New("connection refused")
}

func TestConnectionFailure(t *testing.T) {
	ctx := context.Background()
	repo := New(failingConns{}, SQLite(), nil)
	c := barContainer(t, scenarioBars()...)

	res, err := repo.Save(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Message, "connection refused")

	up, err := repo.Upsert(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, StatusError, up.Status)
	assert.Zero(t, up.RowsInserted)
	assert.Zero(t, up.RowsUpdated)

	_, err = repo.Load(ctx, model.BarTableName, nil)
	assert.Error(t, err)

	err = repo.EnsureTable(ctx, c)
	assert.True(t, IsProvisionError(err))
}
