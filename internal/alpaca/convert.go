package alpaca

import (
	"time"
	_ "time/tzdata" // calendar sessions are New York wall-clock times

	"github.com/rickgao/market-data/internal/frame"
	"github.com/rickgao/market-data/internal/model"
)

var newYork = mustLoadLocation("America/New_York")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

var statusMap = map[string]model.AssetStatus{
	"active":   model.Active,
	"inactive": model.Inactive,
}

var classMap = map[string]model.AssetClass{
	"us_equity": model.Equity,
	"us_option": model.Option,
	"crypto":    model.Crypto,
}

// sessionTime converts a New York date and HH:MM time to UTC. Unparseable
// input is passed through unchanged so validation reports it.
func sessionTime(date, clock string) any {
	t, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, newYork)
	if err != nil {
		return date + " " + clock
	}
	return t.UTC()
}

// CalendarFrame converts calendar days into a calendar frame.
func CalendarFrame(days []Calendar) *frame.Frame {
	f := frame.MustNew("broker", "date", "open", "close")
	for _, d := range days {
		f.MustAppend(string(model.Alpaca), d.Date, sessionTime(d.Date, d.Open), sessionTime(d.Date, d.Close))
	}
	return f
}

// AssetFrame converts assets into an asset frame. Names are suffixed with the
// symbol since Alpaca reuses names across share classes. Unknown status and
// class values are kept verbatim and fail validation.
func AssetFrame(assets []Asset) *frame.Frame {
	f := frame.MustNew("broker", "name", "symbol", "exchange", "asset_class", "tradable", "status")
	for _, a := range assets {
		status := any(a.Status)
		if s, ok := statusMap[a.Status]; ok {
			status = string(s)
		}
		class := any(a.Class)
		if c, ok := classMap[a.Class]; ok {
			class = string(c)
		}
		f.MustAppend(string(model.Alpaca), a.Name+"-"+a.Symbol, a.Symbol, a.Exchange, class, a.Tradable, status)
	}
	return f
}

// BarFrame converts bars of one symbol and timeframe into a bar frame.
func BarFrame(symbol string, tf model.Timeframe, bars []Bar) *frame.Frame {
	f := frame.MustNew("timestamp", "broker", "symbol", "timeframe", "open", "high", "low", "close", "volume", "vwap")
	for _, b := range bars {
		var ts any = b.Timestamp
		if t, err := time.Parse(time.RFC3339Nano, b.Timestamp); err == nil {
			ts = t.UTC()
		}
		var vwap any
		if b.VWAP != nil {
			vwap = *b.VWAP
		}
		f.MustAppend(ts, string(model.Alpaca), symbol, tf.Name(), b.Open, b.High, b.Low, b.Close, b.Volume, vwap)
	}
	return f
}
