// barstream subscribes to live Alpaca minute bars and upserts them into the
// configured database in batches.
// Usage: go run ./cmd/barstream --config configs/ingester.local.yaml
//
// Symbols come from stream.symbols, falling back to ingest.symbols. Use "*"
// to subscribe to every symbol on the feed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/market-data/internal/alpaca"
	"github.com/rickgao/market-data/internal/auth"
	"github.com/rickgao/market-data/internal/buffer"
	"github.com/rickgao/market-data/internal/config"
	"github.com/rickgao/market-data/internal/database"
	"github.com/rickgao/market-data/internal/market"
	"github.com/rickgao/market-data/internal/metrics"
	"github.com/rickgao/market-data/internal/model"
	"github.com/rickgao/market-data/internal/registry"
	"github.com/rickgao/market-data/internal/repository"
	"github.com/rickgao/market-data/internal/stream"
	"github.com/rickgao/market-data/internal/version"
	"github.com/rickgao/market-data/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/ingester.local.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "config", *configPath)
		os.Exit(1)
	}
	if len(cfg.Stream.Symbols) == 0 {
		slog.Error("stream.symbols is required")
		os.Exit(1)
	}

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Logging.SlogLevel(),
	}))
	slog.SetDefault(logger)
	logger.Info("starting barstream", version.LogAttrs()...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("barstream failed", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	store, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	creds, err := auth.LoadCredentials(cfg.Alpaca.KeyID, cfg.Alpaca.Secret, cfg.Alpaca.SecretPath)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}

	repo := repository.New(store.DB, store.Dialect, logger)
	rec := registry.New(repo, cfg.Ingest.Broker, logger)
	client := alpaca.NewClient(cfg.Alpaca.TradingURL, cfg.Alpaca.DataURL, creds,
		alpaca.WithLogger(logger),
		alpaca.WithTimeout(cfg.Alpaca.Timeout),
		alpaca.WithFeed(cfg.Alpaca.Feed),
	)
	data := market.New(client, repo, rec, logger, market.WithMetrics(m))

	// Metrics server
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Metrics.Port), Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	// Stream -> buffer -> writer
	buf := buffer.New[stream.Bar](cfg.Stream.BufferSize, cfg.Stream.BufferLimit)
	w := writer.NewBarWriter(writer.Config{
		BatchSize:     cfg.Stream.BatchSize,
		FlushInterval: cfg.Stream.FlushInterval,
		Timeframe:     model.Tf1m, // the stream only carries minute bars
	}, buf, data, m, logger)
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start writer: %w", err)
	}

	streamCfg := stream.DefaultConfig()
	streamCfg.URL = cfg.Alpaca.StreamURL
	streamCfg.Credentials = creds
	streamCfg.Symbols = cfg.Stream.Symbols
	streamCfg.PingTimeout = cfg.Stream.PingTimeout

	// Stats printer
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ws := w.Stats()
				bs := buf.Stats()
				logger.Info("stats",
					"bars_received", ws.Received,
					"flushes", ws.Flushes,
					"rows_inserted", ws.Inserted,
					"rows_updated", ws.Updated,
					"dupes", ws.Dupes,
					"flush_errors", ws.Errors,
					"buffered", bs.Count,
					"buffer_dropped", bs.Dropped,
				)
			}
		}
	}()

	logger.Info("streaming started", "url", streamCfg.URL, "symbols", len(streamCfg.Symbols))
	streamErr := stream.Run(ctx, streamCfg, m, logger, func(b stream.Bar) { buf.Send(b) })

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	stopErr := w.Stop(shutdownCtx)
	server.Shutdown(shutdownCtx)

	return errors.Join(streamErr, stopErr)
}
