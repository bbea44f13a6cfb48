package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rickgao/market-data/internal/config"
	"github.com/rickgao/market-data/internal/market"
	"github.com/rickgao/market-data/internal/model"
)

// operations is the part of market.Data an ingester run drives.
type operations interface {
	GetCalendar(ctx context.Context, params model.CalendarParams) (market.Outcome, error)
	GetAssets(ctx context.Context) (market.Outcome, error)
	Backfill(ctx context.Context, symbols []string, tf model.Timeframe, start time.Time, end *time.Time, concurrency int) ([]market.Outcome, error)
}

// ingestOnce runs the configured operations in a fixed order: calendar, then
// assets, then bars. Bars are skipped when skipBars is set so a poller can own
// them. A failing operation does not stop the ones after it.
func ingestOnce(ctx context.Context, cfg config.IngestConfig, ops operations, skipBars bool, now time.Time, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	var errs []error

	if cfg.Runs(config.OpCalendar) {
		if _, err := ops.GetCalendar(ctx, model.CalendarParams{}); err != nil {
			errs = append(errs, fmt.Errorf("calendar: %w", err))
		}
	}
	if cfg.Runs(config.OpAssets) {
		if _, err := ops.GetAssets(ctx); err != nil {
			errs = append(errs, fmt.Errorf("assets: %w", err))
		}
	}
	if cfg.Runs(config.OpBars) && !skipBars {
		outcomes, err := ops.Backfill(ctx, cfg.Symbols, cfg.Timeframe, now.Add(-cfg.Lookback), nil, cfg.Concurrency)
		var rows int64
		succeeded := 0
		for _, o := range outcomes {
			if o.Action == "" {
				continue // failed symbol
			}
			succeeded++
			rows += o.RowsInserted + o.RowsUpdated
		}
		logger.Info("backfill complete",
			"symbols", len(cfg.Symbols),
			"succeeded", succeeded,
			"rows", rows,
		)
		if err != nil {
			errs = append(errs, fmt.Errorf("bars: %w", err))
		}
	}

	return errors.Join(errs...)
}
