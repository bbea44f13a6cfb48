package model

import (
	"github.com/rickgao/market-data/internal/schema"
)

// Destination tables.
const (
	CalendarTableName = "calendar"
	AssetTableName    = "assets"
	BarTableName      = "bars"
)

var brokerColumn = schema.Column{Name: "broker", Type: schema.Category(names(Brokers())...)}

// CalendarTable holds one trading session per broker and date.
var CalendarTable = schema.MustNew(schema.KindTimeseries, "date", []schema.Column{
	brokerColumn,
	{Name: "date", Type: schema.Date},
	{Name: "open", Type: schema.Timestamp},
	{Name: "close", Type: schema.Timestamp},
},
	schema.WithUnique("broker"),
	schema.WithInvariant(schema.Invariant{
		Name:    "open_lower_than_close",
		Columns: []string{"open", "close"},
		Holds: func(r schema.Row) bool {
			return r.Time("close").After(r.Time("open"))
		},
	}),
)

// AssetTable holds the instruments a broker lists.
var AssetTable = schema.MustNew(schema.KindRelational, "symbol", []schema.Column{
	brokerColumn,
	{Name: "name", Type: schema.Text, Unique: true},
	{Name: "symbol", Type: schema.Text, Unique: true},
	{Name: "exchange", Type: schema.Text},
	{Name: "asset_class", Type: schema.Category(names(AssetClasses())...)},
	{Name: "tradable", Type: schema.Boolean},
	{Name: "status", Type: schema.Category(names(AssetStatuses())...)},
}, schema.WithUnique("name"))

var positive = []schema.Check{schema.Positive()}

// BarTable holds OHLCV bars keyed by time, broker, symbol and timeframe.
var BarTable = schema.MustNew(schema.KindTimeseries, "timestamp", []schema.Column{
	{Name: "timestamp", Type: schema.Timestamp},
	brokerColumn,
	{Name: "symbol", Type: schema.Text},
	{Name: "timeframe", Type: schema.Text},
	{Name: "open", Type: schema.Float64, Checks: positive},
	{Name: "high", Type: schema.Float64, Checks: positive},
	{Name: "low", Type: schema.Float64, Checks: positive},
	{Name: "close", Type: schema.Float64, Checks: positive},
	{Name: "volume", Type: schema.Float64, Checks: positive},
	{Name: "vwap", Type: schema.Float64, Nullable: true, Optional: true, Checks: positive},
}, schema.WithUnique("broker", "symbol", "timeframe"))
