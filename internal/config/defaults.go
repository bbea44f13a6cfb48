package config

import (
	"time"

	"github.com/rickgao/market-data/internal/model"
)

// Default values for optional configuration fields.
const (
	DefaultLogLevel          = "info"
	DefaultTradingURL        = "https://paper-api.alpaca.markets"
	DefaultDataURL           = "https://data.alpaca.markets"
	DefaultStreamURL         = "wss://stream.data.alpaca.markets/v2/iex"
	DefaultFeed              = "iex"
	DefaultAPITimeout        = 30 * time.Second
	DefaultMaxRetries        = 3
	DefaultDriver            = DriverTimescale
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 10
	DefaultMinConns          = 2
	DefaultSQLitePath        = "market_data.db"
	DefaultBroker            = model.Alpaca
	DefaultLookback          = 24 * time.Hour
	DefaultIngestConcurrency = 4
	DefaultBatchSize         = 500
	DefaultFlushInterval     = 5 * time.Second
	DefaultBufferSize        = 1024
	DefaultPingTimeout       = 30 * time.Second
	DefaultMetricsPort       = 9090
	DefaultMetricsPath       = "/metrics"
)

// DefaultTimeframe is used when ingest.timeframe is unset.
var DefaultTimeframe = model.Tf1m

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}

	// Alpaca defaults
	if c.Alpaca.TradingURL == "" {
		c.Alpaca.TradingURL = DefaultTradingURL
	}
	if c.Alpaca.DataURL == "" {
		c.Alpaca.DataURL = DefaultDataURL
	}
	if c.Alpaca.StreamURL == "" {
		c.Alpaca.StreamURL = DefaultStreamURL
	}
	if c.Alpaca.Feed == "" {
		c.Alpaca.Feed = DefaultFeed
	}
	if c.Alpaca.Timeout == 0 {
		c.Alpaca.Timeout = DefaultAPITimeout
	}
	if c.Alpaca.MaxRetries == 0 {
		c.Alpaca.MaxRetries = DefaultMaxRetries
	}

	// Database defaults
	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDriver
	}
	applyDBDefaults(&c.Database.Timescale)
	if c.Database.Timescale.ApplicationName == "" {
		c.Database.Timescale.ApplicationName = c.Instance.ID
	}
	if c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = DefaultSQLitePath
	}

	// Ingest defaults
	if c.Ingest.Broker == "" {
		c.Ingest.Broker = DefaultBroker
	}
	if c.Ingest.Timeframe.Amount == 0 {
		c.Ingest.Timeframe = DefaultTimeframe
	}
	if c.Ingest.Lookback == 0 {
		c.Ingest.Lookback = DefaultLookback
	}
	if c.Ingest.Concurrency == 0 {
		c.Ingest.Concurrency = DefaultIngestConcurrency
	}
	if len(c.Ingest.Operations) == 0 {
		c.Ingest.Operations = []string{OpBars}
	}

	// Stream defaults
	if len(c.Stream.Symbols) == 0 {
		c.Stream.Symbols = c.Ingest.Symbols
	}
	if c.Stream.BatchSize == 0 {
		c.Stream.BatchSize = DefaultBatchSize
	}
	if c.Stream.FlushInterval == 0 {
		c.Stream.FlushInterval = DefaultFlushInterval
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = DefaultBufferSize
	}
	if c.Stream.PingTimeout == 0 {
		c.Stream.PingTimeout = DefaultPingTimeout
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
