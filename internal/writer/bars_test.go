package writer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/market-data/internal/alpaca"
	"github.com/rickgao/market-data/internal/buffer"
	"github.com/rickgao/market-data/internal/container"
	"github.com/rickgao/market-data/internal/frame"
	"github.com/rickgao/market-data/internal/market"
	"github.com/rickgao/market-data/internal/model"
	"github.com/rickgao/market-data/internal/stream"
)

type fakeStore struct {
	mu     sync.Mutex
	frames []*frame.Frame
	err    error
}

func (s *fakeStore) StoreBars(_ context.Context, f *frame.Frame) (market.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	if s.err != nil {
		return market.Outcome{}, s.err
	}
	c, err := container.New(model.BarTableName, model.BarTable, f)
	if err != nil {
		return market.Outcome{}, err
	}
	return market.Outcome{RowsInserted: int64(c.Len())}, nil
}

func (s *fakeStore) rows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range s.frames {
		n += f.Len()
	}
	return n
}

func bar(symbol string, minute int, close float64) stream.Bar {
	ts := time.Date(2024, 6, 3, 13, 30+minute, 0, 0, time.UTC).Format(time.RFC3339)
	return stream.Bar{
		Symbol: symbol,
		Bar:    alpaca.Bar{Timestamp: ts, Open: 1, High: 2, Low: 0.5, Close: close, Volume: 100},
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewBarWriter_Defaults(t *testing.T) {
	w := NewBarWriter(Config{}, buffer.New[stream.Bar](1, 0), &fakeStore{}, nil, nil)
	def := DefaultConfig()
	if w.cfg.BatchSize != def.BatchSize {
		t.Errorf("BatchSize = %d, want %d", w.cfg.BatchSize, def.BatchSize)
	}
	if w.cfg.FlushInterval != def.FlushInterval {
		t.Errorf("FlushInterval = %v, want %v", w.cfg.FlushInterval, def.FlushInterval)
	}
	if w.cfg.Timeframe != model.Tf1m {
		t.Errorf("Timeframe = %v, want %v", w.cfg.Timeframe, model.Tf1m)
	}
}

func TestBarWriter_FlushOnBatchSize(t *testing.T) {
	input := buffer.New[stream.Bar](16, 0)
	store := &fakeStore{}
	w := NewBarWriter(Config{BatchSize: 3, FlushInterval: time.Hour}, input, store, nil, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	for i := range 3 {
		input.Send(bar("AAPL", i, 10))
	}
	waitFor(t, func() bool { return store.rows() == 3 })

	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	stats := w.Stats()
	if stats.Flushes != 1 || stats.Inserted != 3 || stats.Received != 3 {
		t.Errorf("Stats() = %+v, want 1 flush of 3 bars", stats)
	}
}

func TestBarWriter_FlushOnInterval(t *testing.T) {
	input := buffer.New[stream.Bar](16, 0)
	store := &fakeStore{}
	w := NewBarWriter(Config{BatchSize: 100, FlushInterval: 20 * time.Millisecond}, input, store, nil, nil)

	w.Start(context.Background())
	defer w.Stop(context.Background())

	input.Send(bar("AAPL", 0, 10))
	waitFor(t, func() bool { return store.rows() == 1 })
}

func TestBarWriter_StopFlushesEverything(t *testing.T) {
	input := buffer.New[stream.Bar](16, 0)
	store := &fakeStore{}
	w := NewBarWriter(Config{BatchSize: 4, FlushInterval: time.Hour}, input, store, nil, nil)

	w.Start(context.Background())
	for i := range 10 {
		input.Send(bar("MSFT", i, 10))
	}
	if err := w.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if got := store.rows(); got != 10 {
		t.Errorf("stored %d bars, want 10", got)
	}
	for _, f := range store.frames {
		if f.Len() > 4 {
			t.Errorf("flushed frame of %d bars, want at most 4", f.Len())
		}
	}
}

func TestBarWriter_DeduplicatesWithinBatch(t *testing.T) {
	w := NewBarWriter(Config{BatchSize: 10, FlushInterval: time.Hour}, buffer.New[stream.Bar](4, 0), &fakeStore{}, nil, nil)

	w.add(bar("AAPL", 0, 10))
	w.add(bar("AAPL", 0, 11))
	w.add(bar("MSFT", 0, 12))

	if got := w.pending(); got != 2 {
		t.Fatalf("pending() = %d, want 2", got)
	}
	if got := w.batch[0].Close; got != 11 {
		t.Errorf("AAPL close = %v, want latest 11", got)
	}
	if got := w.Stats().Dupes; got != 1 {
		t.Errorf("Dupes = %d, want 1", got)
	}
}

func TestBarWriter_FlushErrorIsCounted(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	w := NewBarWriter(Config{BatchSize: 10, FlushInterval: time.Hour}, buffer.New[stream.Bar](4, 0), store, nil, nil)

	w.add(bar("AAPL", 0, 10))
	w.flush(context.Background())

	stats := w.Stats()
	if stats.Errors != 1 || stats.Flushes != 0 {
		t.Errorf("Stats() = %+v, want 1 error and no flushes", stats)
	}
	if w.pending() != 0 {
		t.Errorf("pending() = %d, failed batch should be dropped", w.pending())
	}
}

// gatedStore blocks every StoreBars call until release is closed.
type gatedStore struct {
	entered  chan struct{}
	release  chan struct{}
	mu       sync.Mutex
	inFlight int
	maxSeen  int
	closes   []any
}

func (s *gatedStore) StoreBars(_ context.Context, f *frame.Frame) (market.Outcome, error) {
	s.mu.Lock()
	s.inFlight++
	s.maxSeen = max(s.maxSeen, s.inFlight)
	s.closes = append(s.closes, f.Record(0)["close"])
	s.mu.Unlock()

	s.entered <- struct{}{}
	<-s.release

	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
	return market.Outcome{RowsInserted: int64(f.Len())}, nil
}

func TestBarWriter_FlushesCommitInOrder(t *testing.T) {
	store := &gatedStore{entered: make(chan struct{}, 2), release: make(chan struct{})}
	w := NewBarWriter(Config{BatchSize: 1, FlushInterval: time.Hour}, buffer.New[stream.Bar](4, 0), store, nil, nil)

	var wg sync.WaitGroup
	w.add(bar("AAPL", 0, 10))
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.flush(context.Background())
	}()
	<-store.entered

	w.add(bar("AAPL", 0, 11))
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.flush(context.Background())
	}()

	select {
	case <-store.entered:
		t.Fatal("second flush reached the store while the first was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	wg.Wait()

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.maxSeen != 1 {
		t.Errorf("max concurrent StoreBars = %d, want 1", store.maxSeen)
	}
	if len(store.closes) != 2 || store.closes[0] != 10.0 || store.closes[1] != 11.0 {
		t.Errorf("stored closes = %v, want [10 11]", store.closes)
	}
}

func TestBarWriter_ToFrameValidates(t *testing.T) {
	w := NewBarWriter(Config{Timeframe: model.Tf1m}, buffer.New[stream.Bar](1, 0), &fakeStore{}, nil, nil)
	f := w.toFrame([]stream.Bar{bar("AAPL", 0, 10), bar("MSFT", 0, 20)})

	c, err := container.New(model.BarTableName, model.BarTable, f)
	if err != nil {
		t.Fatalf("frame failed validation: %v", err)
	}
	row := c.Dataset().Row(1)
	if row.String("symbol") != "MSFT" || row.String("timeframe") != "1m" || row.String("broker") != "Alpaca" {
		t.Errorf("row 1 = %v", c.Dataset().Values(1))
	}
}
