package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/market-data/internal/container"
	"github.com/rickgao/market-data/internal/frame"
	"github.com/rickgao/market-data/internal/metrics"
	"github.com/rickgao/market-data/internal/model"
	"github.com/rickgao/market-data/internal/registry"
	"github.com/rickgao/market-data/internal/repository"
	"github.com/rickgao/market-data/internal/schema"
)

// Fetcher retrieves raw market data from a broker.
type Fetcher interface {
	FetchCalendar(ctx context.Context, params model.CalendarParams) (*frame.Frame, error)
	FetchAssets(ctx context.Context) (*frame.Frame, error)
	FetchBars(ctx context.Context, params model.BarsParams) (*frame.Frame, error)
}

// Store persists validated containers.
type Store interface {
	Upsert(ctx context.Context, c *container.Container) (repository.UpsertResult, error)
}

// Recorder appends audit entries.
type Recorder interface {
	Add(ctx context.Context, e registry.Entry) (registry.Entry, error)
}

// ErrOperation matches failed store writes.
var ErrOperation = errors.New("market data operation failed")

// OperationError carries the store's message for a failed write.
type OperationError struct {
	Action  string
	Table   string
	Message string
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s into %s: %s", e.Action, e.Table, e.Message)
}

func (e *OperationError) Is(target error) bool { return target == ErrOperation }

// Outcome summarizes one successful operation.
type Outcome struct {
	Action       string
	Table        string
	RowsInserted int64
	RowsUpdated  int64

	// Exact is false when the store estimated the insert/update split.
	Exact bool

	FetchTime  time.Duration
	UpsertTime time.Duration

	Entry registry.Entry
}

// Elapsed is the combined fetch and upsert time.
func (o Outcome) Elapsed() time.Duration { return o.FetchTime + o.UpsertTime }

// Data runs market data operations against one fetcher and store.
type Data struct {
	fetcher  Fetcher
	store    Store
	recorder Recorder
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures Data.
type Option func(*Data)

// WithMetrics records operation metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Data) { d.metrics = m }
}

// WithClock sets the time source used for timing.
func WithClock(now func() time.Time) Option {
	return func(d *Data) { d.now = now }
}

// New creates the orchestrator.
func New(fetcher Fetcher, store Store, recorder Recorder, logger *slog.Logger, opts ...Option) *Data {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Data{
		fetcher:  fetcher,
		store:    store,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// GetCalendar fetches and stores trading sessions.
func (d *Data) GetCalendar(ctx context.Context, params model.CalendarParams) (Outcome, error) {
	return d.run(ctx, registry.ActionFetchCalendar, model.CalendarTableName, model.CalendarTable,
		func(ctx context.Context) (*frame.Frame, error) {
			return d.fetcher.FetchCalendar(ctx, params)
		})
}

// GetAssets fetches and stores the broker's assets.
func (d *Data) GetAssets(ctx context.Context) (Outcome, error) {
	return d.run(ctx, registry.ActionFetchAssets, model.AssetTableName, model.AssetTable,
		d.fetcher.FetchAssets)
}

// GetBars fetches and stores bars for one symbol.
func (d *Data) GetBars(ctx context.Context, params model.BarsParams) (Outcome, error) {
	return d.run(ctx, registry.ActionFetchBars, model.BarTableName, model.BarTable,
		func(ctx context.Context) (*frame.Frame, error) {
			return d.fetcher.FetchBars(ctx, params)
		})
}

// StoreBars validates and stores bars that were already fetched.
func (d *Data) StoreBars(ctx context.Context, bars *frame.Frame) (Outcome, error) {
	out := Outcome{Action: registry.ActionStoreBars, Table: model.BarTableName}
	return d.persist(ctx, out, model.BarTable, bars)
}

// Backfill runs GetBars for every symbol with at most concurrency calls in
// flight. A failing symbol does not stop the others; all failures are joined.
// Outcomes are returned in symbol order, zero-valued for failed symbols.
func (d *Data) Backfill(ctx context.Context, symbols []string, tf model.Timeframe, start time.Time, end *time.Time, concurrency int) ([]Outcome, error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	outcomes := make([]Outcome, len(symbols))
	errs := make([]error, len(symbols))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, symbol := range symbols {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = fmt.Errorf("backfill %s: %w", symbol, err)
				return nil
			}
			out, err := d.GetBars(ctx, model.BarsParams{
				Symbol:    symbol,
				Timeframe: tf,
				Start:     start,
				End:       end,
			})
			if err != nil {
				errs[i] = fmt.Errorf("backfill %s: %w", symbol, err)
				return nil
			}
			outcomes[i] = out
			return nil
		})
	}
	g.Wait() //nolint:errcheck // goroutines report through errs

	err := errors.Join(errs...)
	if err != nil {
		d.logger.Warn("backfill finished with errors", "symbols", len(symbols), "error", err)
	}
	return outcomes, err
}

func (d *Data) run(ctx context.Context, action, table string, t *schema.Table, fetch func(context.Context) (*frame.Frame, error)) (Outcome, error) {
	out := Outcome{Action: action, Table: table}

	start := d.now()
	f, err := fetch(ctx)
	out.FetchTime = d.now().Sub(start)
	if err != nil {
		d.metrics.ObserveOperation(action, "error", out.Elapsed())
		return out, fmt.Errorf("fetch %s: %w", table, err)
	}
	return d.persist(ctx, out, t, f)
}

// persist validates f against t, upserts it and records the operation. Timings
// accumulate on out.
func (d *Data) persist(ctx context.Context, out Outcome, t *schema.Table, f *frame.Frame) (Outcome, error) {
	action, table := out.Action, out.Table

	c, err := container.New(table, t, f)
	if err != nil {
		d.metrics.ValidationFailed(table)
		d.metrics.ObserveOperation(action, "error", out.Elapsed())
		return out, err
	}

	start := d.now()
	res, err := d.store.Upsert(ctx, c)
	out.UpsertTime = d.now().Sub(start)
	if err != nil {
		d.metrics.ObserveOperation(action, "error", out.Elapsed())
		return out, fmt.Errorf("upsert %s: %w", table, err)
	}
	if !res.OK() {
		d.metrics.ObserveOperation(action, "error", out.Elapsed())
		d.logger.Warn("upsert failed",
			"action", action,
			"table", table,
			"rows", c.Len(),
			"error", res.Message,
		)
		return out, &OperationError{Action: action, Table: table, Message: res.Message}
	}

	out.RowsInserted = res.RowsInserted
	out.RowsUpdated = res.RowsUpdated
	out.Exact = res.Exact

	inserted, updated := res.RowsInserted, res.RowsUpdated
	seconds := float32(out.Elapsed().Seconds())
	entry, err := d.recorder.Add(ctx, registry.Entry{
		Action:        action,
		Log:           fmt.Sprintf("%d rows upserted into %s (%d inserted, %d updated)", c.Len(), table, res.RowsInserted, res.RowsUpdated),
		RowsInserted:  &inserted,
		RowsUpdated:   &updated,
		ExecutionTime: &seconds,
	})
	if err != nil {
		d.metrics.ObserveOperation(action, "error", out.Elapsed())
		return out, fmt.Errorf("record %s: %w", action, err)
	}
	out.Entry = entry

	d.metrics.AddRows(table, res.RowsInserted, res.RowsUpdated)
	d.metrics.ObserveOperation(action, "success", out.Elapsed())
	d.logger.Info("operation complete",
		"action", action,
		"table", table,
		"rows_inserted", res.RowsInserted,
		"rows_updated", res.RowsUpdated,
		"duration", out.Elapsed(),
	)
	return out, nil
}
