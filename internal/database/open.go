package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/rickgao/market-data/internal/config"
	"github.com/rickgao/market-data/internal/repository"
)

// Store is an open storage backend.
type Store struct {
	DB      *sql.DB
	Dialect repository.Dialect

	pool *pgxpool.Pool
}

// Open connects to the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	switch cfg.Driver {
	case config.DriverTimescale:
		pool, err := Connect(ctx, cfg.Timescale)
		if err != nil {
			return nil, fmt.Errorf("connect timescale: %w", err)
		}
		return &Store{
			DB:      stdlib.OpenDBFromPool(pool),
			Dialect: repository.Timescale(),
			pool:    pool,
		}, nil
	case config.DriverSQLite:
		db, err := OpenSQLite(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return &Store{DB: db, Dialect: repository.SQLite()}, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

// Connect creates a single connection pool.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	connStr := BuildConnString(cfg)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// OpenSQLite opens the database file at path. Transactions take the write
// lock up front so concurrent upserts queue instead of failing.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; callers queue on the pool rather than the file lock.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

// Close releases the handle and, for timescale, the pool behind it.
func (s *Store) Close() error {
	err := s.DB.Close()
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}

// Ping verifies the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", s.Dialect.Name(), err)
	}
	return nil
}
