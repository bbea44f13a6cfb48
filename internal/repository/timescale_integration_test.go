//go:build integration

package repository

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/market-data/internal/model"
)

// newTimescaleRepo connects to TIMESCALEDB_URL and isolates the test in a
// throwaway schema.
func newTimescaleRepo(t *testing.T) *Repository {
	t.Helper()
	url := os.Getenv("TIMESCALEDB_URL")
	if url == "" {
		t.Skip("TIMESCALEDB_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	schemaName := fmt.Sprintf("it_%d", time.Now().UnixNano())
	admin, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	_, err = admin.Exec(ctx, "CREATE SCHEMA "+quote(schemaName))
	require.NoError(t, err)
	t.Cleanup(func() {
		admin.Exec(context.Background(), "DROP SCHEMA "+quote(schemaName)+" CASCADE") //nolint:errcheck
		admin.Close()
	})

	cfg, err := pgxpool.ParseConfig(url)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schemaName + ",public"
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	db := stdlib.OpenDBFromPool(pool)
	t.Cleanup(func() {
		db.Close()
		pool.Close()
	})

	return New(db, Timescale(), nil)
}

func TestTimescaleUpsertScenario(t *testing.T) {
	ctx := context.Background()
	repo := newTimescaleRepo(t)

	res, err := repo.Save(ctx, barContainer(t, scenarioBars()...))
	require.NoError(t, err)
	require.True(t, res.OK(), res.Message)

	up, err := repo.Upsert(ctx, barContainer(t, bar{"AAPL", t0, 100.0, 1500.0}))
	require.NoError(t, err)
	require.True(t, up.OK(), up.Message)
	assert.True(t, up.Exact)
	assert.Equal(t, int64(0), up.RowsInserted)
	assert.Equal(t, int64(1), up.RowsUpdated)

	f, err := repo.Load(ctx, model.BarTableName, nil)
	require.NoError(t, err)
	require.Equal(t, 2, f.Len())
	assert.Equal(t, 1500.0, bySymbol(t, f)["AAPL"]["volume"])

	f, err = repo.Load(ctx, model.BarTableName, &LoadOptions{Filters: []Filter{Where("symbol", Eq, "AAPL")}})
	require.NoError(t, err)
	assert.Equal(t, 1, f.Len())
}

func TestTimescaleConcurrentProvisioning(t *testing.T) {
	ctx := context.Background()
	repo := newTimescaleRepo(t)

	errs := make(chan error, 4)
	for i := range 4 {
		c := barContainer(t, bar{"AAPL", t0.Add(time.Duration(i) * time.Minute), 100, 1000})
		go func() {
			res, err := repo.Upsert(ctx, c)
			if err == nil && !res.OK() {
				err = fmt.Errorf("upsert: %s", res.Message)
			}
			errs <- err
		}()
	}
	for range 4 {
		assert.NoError(t, <-errs)
	}

	f, err := repo.Load(ctx, model.BarTableName, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, f.Len())
}
