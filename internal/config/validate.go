package config

import (
	"errors"
	"fmt"

	"github.com/rickgao/market-data/internal/model"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Alpaca.KeyID == "" {
		return errors.New("alpaca.key_id is required")
	}
	if c.Alpaca.Secret == "" && c.Alpaca.SecretPath == "" {
		return errors.New("alpaca.secret or alpaca.secret_path is required")
	}
	if c.Alpaca.Feed != "iex" && c.Alpaca.Feed != "sip" {
		return fmt.Errorf("alpaca.feed must be iex or sip, got %q", c.Alpaca.Feed)
	}
	if c.Alpaca.MaxRetries < 0 {
		return errors.New("alpaca.max_retries must be >= 0")
	}

	switch c.Database.Driver {
	case DriverTimescale:
		if err := c.Database.Timescale.validate("database.timescale"); err != nil {
			return err
		}
	case DriverSQLite:
		if c.Database.SQLite.Path == "" {
			return errors.New("database.sqlite.path is required")
		}
	default:
		return fmt.Errorf("database.driver must be %s or %s, got %q", DriverTimescale, DriverSQLite, c.Database.Driver)
	}

	if c.Ingest.Broker != model.Alpaca {
		return fmt.Errorf("ingest.broker must be %s, got %q", model.Alpaca, c.Ingest.Broker)
	}
	if err := c.Ingest.Timeframe.Validate(); err != nil {
		return fmt.Errorf("ingest.timeframe: %w", err)
	}
	for _, op := range c.Ingest.Operations {
		switch op {
		case OpCalendar, OpAssets, OpBars:
		default:
			return fmt.Errorf("ingest.operations: unknown operation %q", op)
		}
	}
	if c.Ingest.Runs(OpBars) && len(c.Ingest.Symbols) == 0 {
		return errors.New("ingest.symbols is required")
	}
	if c.Ingest.Lookback < 0 {
		return errors.New("ingest.lookback must be >= 0")
	}
	if c.Ingest.Concurrency < 1 {
		return errors.New("ingest.concurrency must be >= 1")
	}
	if c.Ingest.PollInterval < 0 {
		return errors.New("ingest.poll_interval must be >= 0")
	}

	if c.Stream.BatchSize < 1 {
		return errors.New("stream.batch_size must be >= 1")
	}
	if c.Stream.BufferSize < 1 {
		return errors.New("stream.buffer_size must be >= 1")
	}
	if c.Stream.BufferLimit != 0 && c.Stream.BufferLimit < c.Stream.BufferSize {
		return fmt.Errorf("stream.buffer_limit (%d) cannot be below buffer_size (%d)", c.Stream.BufferLimit, c.Stream.BufferSize)
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
