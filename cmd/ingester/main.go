// ingester fetches calendar, asset and bar data from Alpaca and upserts it
// into the configured database, once or on a polling interval.
// Usage: go run ./cmd/ingester --config configs/ingester.local.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rickgao/market-data/internal/alpaca"
	"github.com/rickgao/market-data/internal/auth"
	"github.com/rickgao/market-data/internal/config"
	"github.com/rickgao/market-data/internal/database"
	"github.com/rickgao/market-data/internal/market"
	"github.com/rickgao/market-data/internal/metrics"
	"github.com/rickgao/market-data/internal/poller"
	"github.com/rickgao/market-data/internal/registry"
	"github.com/rickgao/market-data/internal/repository"
	"github.com/rickgao/market-data/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/ingester.local.yaml", "path to config file")
	once := flag.Bool("once", false, "run the configured operations once and exit, ignoring ingest.poll_interval")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "config", *configPath)
		os.Exit(1)
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Logging.SlogLevel(),
	}))
	slog.SetDefault(logger)

	logger.Info("starting ingester", append(version.LogAttrs(),
		"instance_id", cfg.Instance.ID,
		"config", *configPath,
	)...)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, *once, logger); err != nil {
		logger.Error("ingester failed", "error", err)
		os.Exit(1)
	}
	logger.Info("ingester stopped")
}

func run(ctx context.Context, cfg *config.Config, once bool, logger *slog.Logger) error {
	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	// Connect to database
	logger.Info("opening database", "driver", cfg.Database.Driver)
	store, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	repo := repository.New(store.DB, store.Dialect, logger)
	rec := registry.New(repo, cfg.Ingest.Broker, logger)

	// Create API client
	creds, err := auth.LoadCredentials(cfg.Alpaca.KeyID, cfg.Alpaca.Secret, cfg.Alpaca.SecretPath)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	client := alpaca.NewClient(
		cfg.Alpaca.TradingURL,
		cfg.Alpaca.DataURL,
		creds,
		alpaca.WithLogger(logger),
		alpaca.WithTimeout(cfg.Alpaca.Timeout),
		alpaca.WithRetries(cfg.Alpaca.MaxRetries, time.Second),
		alpaca.WithFeed(cfg.Alpaca.Feed),
	)

	data := market.New(client, repo, rec, logger, market.WithMetrics(m))

	// Start health server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: newHandler(store, rec, reg, cfg.Metrics.Path, time.Now, logger),
	}
	go func() {
		logger.Info("starting health server", "port", cfg.Metrics.Port, "metrics_path", cfg.Metrics.Path)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		server.Shutdown(shutdownCtx)
	}()

	polling := !once && cfg.Ingest.PollInterval > 0 && cfg.Ingest.Runs(config.OpBars)

	err = ingestOnce(ctx, cfg.Ingest, data, polling, time.Now(), logger)
	if !polling {
		return err
	}
	if err != nil {
		logger.Warn("initial ingest finished with errors", "error", err)
	}

	p := poller.New(poller.Config{
		Interval:    cfg.Ingest.PollInterval,
		Lookback:    cfg.Ingest.Lookback,
		Timeframe:   cfg.Ingest.Timeframe,
		Concurrency: cfg.Ingest.Concurrency,
		Timeout:     cfg.Alpaca.Timeout,
	}, data, poller.StaticSymbols(cfg.Ingest.Symbols), logger)
	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("start poller: %w", err)
	}

	logger.Info("ingester running",
		"instance_id", cfg.Instance.ID,
		"symbols", len(cfg.Ingest.Symbols),
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := p.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop poller: %w", err)
	}

	stats := p.Stats()
	logger.Info("poller summary",
		"cycles", stats.Cycles,
		"fetched", stats.Fetched,
		"errors", stats.Errors,
		"rows_inserted", stats.Inserted,
		"rows_updated", stats.Updated,
	)
	return nil
}
