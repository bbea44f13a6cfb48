package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/market-data/internal/market"
	"github.com/rickgao/market-data/internal/model"
)

// SymbolSource provides the symbols to poll.
type SymbolSource interface {
	Symbols() []string
}

// StaticSymbols is a fixed SymbolSource.
type StaticSymbols []string

func (s StaticSymbols) Symbols() []string { return s }

// BarSource fetches and stores one symbol's bars.
type BarSource interface {
	GetBars(ctx context.Context, params model.BarsParams) (market.Outcome, error)
}

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration   // Poll interval (default: 1m)
	Lookback    time.Duration   // Window of the first poll per symbol (default: 1h)
	Timeframe   model.Timeframe // Bar timeframe (default: 1m)
	Concurrency int             // Max concurrent requests (default: 10)
	Timeout     time.Duration   // Per-request timeout (default: 30s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    time.Minute,
		Lookback:    time.Hour,
		Timeframe:   model.Tf1m,
		Concurrency: 10,
		Timeout:     30 * time.Second,
	}
}

// Stats summarizes the poller's work so far.
type Stats struct {
	Cycles   int64
	Fetched  int64
	Errors   int64
	Inserted int64
	Updated  int64
}

// Poller periodically fetches recent bars via REST API.
type Poller struct {
	cfg     Config
	bars    BarSource
	symbols SymbolSource
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	resume map[string]time.Time

	cycles   atomic.Int64
	fetched  atomic.Int64
	errors   atomic.Int64
	inserted atomic.Int64
	updated  atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller. Zero config fields take their defaults.
func New(cfg Config, bars BarSource, symbols SymbolSource, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = def.Lookback
	}
	if cfg.Timeframe.Amount == 0 {
		cfg.Timeframe = def.Timeframe
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Poller{
		cfg:     cfg,
		bars:    bars,
		symbols: symbols,
		logger:  logger,
		now:     time.Now,
		resume:  make(map[string]time.Time),
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("bar poller started",
		"interval", p.cfg.Interval,
		"timeframe", p.cfg.Timeframe.Name(),
		"concurrency", p.cfg.Concurrency,
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("bar poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the poller's counters.
func (p *Poller) Stats() Stats {
	return Stats{
		Cycles:   p.cycles.Load(),
		Fetched:  p.fetched.Load(),
		Errors:   p.errors.Load(),
		Inserted: p.inserted.Load(),
		Updated:  p.updated.Load(),
	}
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.pollAll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pollAll()
		}
	}
}

// pollAll fetches bars for all symbols concurrently.
func (p *Poller) pollAll() {
	start := p.now()

	symbols := p.symbols.Symbols()
	if len(symbols) == 0 {
		p.logger.Debug("no symbols to poll")
		return
	}
	p.cycles.Add(1)

	// Semaphore for bounded concurrency.
	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup
	var fetched, errors atomic.Int64

	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()

			// Acquire semaphore slot.
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-p.ctx.Done():
				return
			}

			if err := p.pollSymbol(symbol); err != nil {
				p.logger.Warn("failed to poll bars",
					"symbol", symbol,
					"err", err,
				)
				errors.Add(1)
				return
			}

			fetched.Add(1)
		}(symbol)
	}

	wg.Wait()
	p.fetched.Add(fetched.Load())
	p.errors.Add(errors.Load())

	p.logger.Info("poll cycle complete",
		"symbols", len(symbols),
		"fetched", fetched.Load(),
		"errors", errors.Load(),
		"duration", p.now().Sub(start),
	)
}

// pollSymbol fetches one symbol's bars since its resume point.
func (p *Poller) pollSymbol(symbol string) error {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	now := p.now()
	params := model.BarsParams{
		Symbol:    symbol,
		Timeframe: p.cfg.Timeframe,
		Start:     p.resumeFrom(symbol, now),
	}

	out, err := p.bars.GetBars(ctx, params)
	if err != nil {
		return err
	}
	p.inserted.Add(out.RowsInserted)
	p.updated.Add(out.RowsUpdated)

	// The newest bar may still be forming, so the next poll refetches it.
	p.mu.Lock()
	p.resume[symbol] = now.Add(-p.cfg.Timeframe.Duration())
	p.mu.Unlock()

	return nil
}

func (p *Poller) resumeFrom(symbol string, now time.Time) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.resume[symbol]; ok {
		return t
	}
	return now.Add(-p.cfg.Lookback)
}
