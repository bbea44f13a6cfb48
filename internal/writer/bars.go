package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/market-data/internal/alpaca"
	"github.com/rickgao/market-data/internal/buffer"
	"github.com/rickgao/market-data/internal/frame"
	"github.com/rickgao/market-data/internal/market"
	"github.com/rickgao/market-data/internal/metrics"
	"github.com/rickgao/market-data/internal/model"
	"github.com/rickgao/market-data/internal/stream"
)

// Config contains configuration for the bar writer.
type Config struct {
	// BatchSize is the number of bars to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration

	// Timeframe labels the streamed bars.
	Timeframe model.Timeframe
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: 5 * time.Second,
		Timeframe:     model.Tf1m,
	}
}

// Stats are cumulative writer counters.
type Stats struct {
	Received int64
	Flushes  int64
	Inserted int64
	Updated  int64
	Dupes    int64
	Errors   int64
}

// BarStore validates and stores a frame of bars.
type BarStore interface {
	StoreBars(ctx context.Context, bars *frame.Frame) (market.Outcome, error)
}

type barKey struct {
	symbol    string
	timestamp string
}

// BarWriter consumes bars from a buffer and stores them in batches.
type BarWriter struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	input *buffer.Buffer[stream.Bar]
	store BarStore

	batch   []stream.Bar
	index   map[barKey]int
	batchMu sync.Mutex
	stats   Stats

	// flushMu is held from taking a batch until it is stored, so batches
	// commit in the order they were taken.
	flushMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBarWriter creates a BarWriter. m may be nil.
func NewBarWriter(cfg Config, input *buffer.Buffer[stream.Bar], store BarStore, m *metrics.Metrics, logger *slog.Logger) *BarWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	if cfg.Timeframe == (model.Timeframe{}) {
		cfg.Timeframe = model.Tf1m
	}
	return &BarWriter{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		input:   input,
		store:   store,
		index:   make(map[barKey]int),
	}
}

// Start begins consuming bars.
func (w *BarWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(2)
	go w.consumeLoop()
	go w.flushLoop()

	w.logger.Info("bar writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop shuts down the writer and flushes what is left, including bars still
// waiting in the buffer.
func (w *BarWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping bar writer")

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("bar writer stop timed out")
		return ctx.Err()
	}

	for _, b := range w.input.Drain(0) {
		w.add(b)
	}
	for w.pending() > 0 {
		w.flush(ctx)
	}

	w.logger.Info("bar writer stopped")
	return nil
}

// Stats returns current counters.
func (w *BarWriter) Stats() Stats {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.stats
}

func (w *BarWriter) pending() int {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return len(w.batch)
}

// consumeLoop reads from the input buffer and accumulates batches.
func (w *BarWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		b, ok := w.input.TryReceive()
		if !ok {
			select {
			case <-w.ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
				continue
			}
		}
		if w.add(b) {
			w.flush(context.WithoutCancel(w.ctx))
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *BarWriter) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(context.WithoutCancel(w.ctx))
		}
	}
}

// add appends a bar, replacing an earlier bar for the same symbol and minute.
// It reports whether the batch is full.
func (w *BarWriter) add(b stream.Bar) bool {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()

	w.stats.Received++
	key := barKey{b.Symbol, b.Timestamp}
	if i, ok := w.index[key]; ok {
		w.batch[i] = b
		w.stats.Dupes++
	} else {
		w.index[key] = len(w.batch)
		w.batch = append(w.batch, b)
	}
	return len(w.batch) >= w.cfg.BatchSize
}

// flush stores up to one batch. In-flight writes are not cancelled with the
// writer.
func (w *BarWriter) flush(ctx context.Context) {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	n := min(len(w.batch), w.cfg.BatchSize)
	batch := w.batch[:n:n]
	w.batch = append([]stream.Bar(nil), w.batch[n:]...)
	w.index = make(map[barKey]int, len(w.batch))
	for i, b := range w.batch {
		w.index[barKey{b.Symbol, b.Timestamp}] = i
	}
	w.batchMu.Unlock()

	w.metrics.SetBuffered(w.input.Len())

	start := time.Now()
	out, err := w.store.StoreBars(ctx, w.toFrame(batch))
	elapsed := time.Since(start)

	w.batchMu.Lock()
	if err != nil {
		w.stats.Errors++
	} else {
		w.stats.Flushes++
		w.stats.Inserted += out.RowsInserted
		w.stats.Updated += out.RowsUpdated
	}
	w.batchMu.Unlock()

	if err != nil {
		w.metrics.ObserveFlush("error", elapsed)
		w.logger.Error("bar flush failed", "error", err, "count", len(batch))
		return
	}

	w.metrics.ObserveFlush("success", elapsed)
	w.logger.Debug("flushed bars",
		"count", len(batch),
		"inserted", out.RowsInserted,
		"updated", out.RowsUpdated,
		"duration", elapsed,
	)
}

// toFrame converts streamed bars into a bar frame.
func (w *BarWriter) toFrame(bars []stream.Bar) *frame.Frame {
	f := alpaca.BarFrame("", w.cfg.Timeframe, nil)
	for _, b := range bars {
		f.Concat(alpaca.BarFrame(b.Symbol, w.cfg.Timeframe, []alpaca.Bar{b.Bar})) //nolint:errcheck // same columns
	}
	return f
}
