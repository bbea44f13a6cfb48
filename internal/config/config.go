package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/rickgao/market-data/internal/model"
)

// Operations an ingester run can perform.
const (
	OpCalendar = "calendar"
	OpAssets   = "assets"
	OpBars     = "bars"
)

// Database drivers.
const (
	DriverTimescale = "timescale"
	DriverSQLite    = "sqlite"
)

// Config is the root configuration shared by the ingester and the bar streamer.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Logging  LoggingConfig  `yaml:"logging"`
	Alpaca   AlpacaConfig   `yaml:"alpaca"`
	Database DatabaseConfig `yaml:"database"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Stream   StreamConfig   `yaml:"stream"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// InstanceConfig identifies this process in logs.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// LoggingConfig selects the log level.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn or error
}

// SlogLevel returns the configured level, info when unrecognised.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// AlpacaConfig holds Alpaca API settings.
type AlpacaConfig struct {
	TradingURL string        `yaml:"trading_url"`
	DataURL    string        `yaml:"data_url"`
	StreamURL  string        `yaml:"stream_url"`
	KeyID      string        `yaml:"key_id"`      // APCA-API-KEY-ID
	Secret     string        `yaml:"secret"`      // APCA-API-SECRET-KEY
	SecretPath string        `yaml:"secret_path"` // File holding the secret; wins over secret
	Feed       string        `yaml:"feed"`        // iex or sip
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	Driver    string       `yaml:"driver"`
	Timescale DBConfig     `yaml:"timescale"`
	SQLite    SQLiteConfig `yaml:"sqlite"`
}

// DBConfig holds a single PostgreSQL/TimescaleDB connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`

	// ApplicationName is reported to the server in pg_stat_activity.
	// Defaults to instance.id.
	ApplicationName string `yaml:"application_name"`
}

// SQLiteConfig holds the embedded database file.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// IngestConfig holds REST ingestion settings.
type IngestConfig struct {
	Broker       model.Broker    `yaml:"broker"`
	Symbols      []string        `yaml:"symbols"`
	Timeframe    model.Timeframe `yaml:"timeframe"`
	Lookback     time.Duration   `yaml:"lookback"`
	Concurrency  int             `yaml:"concurrency"`
	PollInterval time.Duration   `yaml:"poll_interval"` // Zero runs once and exits
	Operations   []string        `yaml:"operations"`
}

// Runs reports whether op is among the configured operations.
func (c IngestConfig) Runs(op string) bool {
	for _, o := range c.Operations {
		if o == op {
			return true
		}
	}
	return false
}

// StreamConfig holds live bar streaming settings.
type StreamConfig struct {
	Symbols       []string      `yaml:"symbols"` // Defaults to ingest.symbols
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
	BufferLimit   int           `yaml:"buffer_limit"` // Zero is unbounded
	PingTimeout   time.Duration `yaml:"ping_timeout"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
