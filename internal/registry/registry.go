// Package registry records every orchestrated operation in an append-only
// audit table.
//
// Entries are validated like any other dataset and written with
// repository.Save. A failed write is always returned to the caller.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/market-data/internal/container"
	"github.com/rickgao/market-data/internal/frame"
	"github.com/rickgao/market-data/internal/model"
	"github.com/rickgao/market-data/internal/repository"
	"github.com/rickgao/market-data/internal/schema"
)

// TableName is the audit table.
const TableName = "registry"

// Actions recorded by the orchestrator.
const (
	ActionFetchCalendar = "FETCH_CALENDAR"
	ActionFetchAssets   = "FETCH_ASSETS"
	ActionFetchBars     = "FETCH_BARS"
	ActionStoreBars     = "STORE_BARS"
)

// Table is the schema of the audit table.
var Table = schema.MustNew(schema.KindNonRelational, "id", []schema.Column{
	{Name: "id", Type: schema.Text, Unique: true},
	{Name: "timestamp", Type: schema.Timestamp, Unique: true},
	{Name: "broker", Type: schema.Category(brokerNames()...)},
	{Name: "action", Type: schema.Text},
	{Name: "log", Type: schema.Text},
	{Name: "rows_inserted", Type: schema.Integer, Nullable: true},
	{Name: "rows_updated", Type: schema.Integer, Nullable: true},
	{Name: "execution_time", Type: schema.Float32, Nullable: true},
}, schema.WithUnique("timestamp"))

func brokerNames() []string {
	var out []string
	for _, b := range model.Brokers() {
		out = append(out, string(b))
	}
	return out
}

// Entry is one audit record.
type Entry struct {
	ID        string
	Timestamp time.Time
	Broker    model.Broker
	Action    string
	Log       string

	RowsInserted *int64
	RowsUpdated  *int64

	// ExecutionTime is in seconds.
	ExecutionTime *float32
}

// ErrWrite matches failures to record an entry.
var ErrWrite = errors.New("registry write failed")

// WriteError is returned by Add when an entry could not be recorded.
type WriteError struct {
	Message string
	Err     error
}

func (e *WriteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrWrite, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrWrite, e.Message)
}

func (e *WriteError) Is(target error) bool { return target == ErrWrite }
func (e *WriteError) Unwrap() error        { return e.Err }

// Store is the part of the repository the registry uses.
type Store interface {
	Save(ctx context.Context, c *container.Container) (repository.SaveResult, error)
	Load(ctx context.Context, name string, opts *repository.LoadOptions) (*frame.Frame, error)
}

// Registry appends entries for one broker.
type Registry struct {
	store  Store
	broker model.Broker
	logger *slog.Logger

	now   func() time.Time
	newID func() string

	mu   sync.Mutex
	last time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the time source for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithIDGenerator sets the entry id generator.
func WithIDGenerator(newID func() string) Option {
	return func(r *Registry) { r.newID = newID }
}

// New creates a Registry that records entries for broker.
func New(store Store, broker model.Broker, logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		store:  store,
		broker: broker,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// timestamp returns a UTC time strictly after the previous entry's, at
// microsecond precision, so concurrent entries never collide on the unique
// timestamp column.
func (r *Registry) timestamp(ts time.Time) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ts.IsZero() {
		ts = r.now()
	}
	ts = ts.UTC().Truncate(time.Microsecond)
	if !ts.After(r.last) {
		ts = r.last.Add(time.Microsecond)
	}
	r.last = ts
	return ts
}

// Add validates and records e. Missing id, timestamp and broker are filled in.
// Any failure is returned as a *WriteError.
func (r *Registry) Add(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = r.newID()
	}
	e.Timestamp = r.timestamp(e.Timestamp)
	if e.Broker == "" {
		e.Broker = r.broker
	}

	f := frame.MustNew(Table.ColumnNames()...).MustAppend(
		e.ID, e.Timestamp, string(e.Broker), e.Action, e.Log,
		deref(e.RowsInserted), deref(e.RowsUpdated), deref(e.ExecutionTime),
	)
	c, err := container.New(TableName, Table, f)
	if err != nil {
		return e, &WriteError{Message: "invalid entry", Err: err}
	}

	res, err := r.store.Save(ctx, c)
	if err != nil {
		return e, &WriteError{Message: "save entry", Err: err}
	}
	if !res.OK() {
		return e, &WriteError{Message: res.Message}
	}

	r.logger.Debug("registry entry added",
		"id", e.ID,
		"action", e.Action,
		"broker", e.Broker,
	)
	return e, nil
}

// Get loads raw entries with the repository filter language.
func (r *Registry) Get(ctx context.Context, opts *repository.LoadOptions) (*frame.Frame, error) {
	return r.store.Load(ctx, TableName, opts)
}

// Entries loads and decodes entries.
func (r *Registry) Entries(ctx context.Context, opts *repository.LoadOptions) ([]Entry, error) {
	f, err := r.Get(ctx, opts)
	if err != nil {
		return nil, err
	}
	ds, err := schema.Validate(TableName, Table, f)
	if err != nil {
		return nil, fmt.Errorf("decode entries: %w", err)
	}

	entries := make([]Entry, ds.Len())
	for i := range entries {
		row := ds.Row(i)
		entries[i] = Entry{
			ID:            row.String("id"),
			Timestamp:     row.Time("timestamp"),
			Broker:        model.Broker(row.String("broker")),
			Action:        row.String("action"),
			Log:           row.String("log"),
			RowsInserted:  nullable[int64](row, "rows_inserted"),
			RowsUpdated:   nullable[int64](row, "rows_updated"),
			ExecutionTime: nullable[float32](row, "execution_time"),
		}
	}
	return entries, nil
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullable[T any](row schema.Row, column string) *T {
	v, ok := row.Get(column).(T)
	if !ok {
		return nil
	}
	return &v
}
