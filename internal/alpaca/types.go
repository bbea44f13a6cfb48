package alpaca

// Calendar from GET /v2/calendar. Times are America/New_York wall clock.
type Calendar struct {
	Date  string `json:"date"`  // 2006-01-02
	Open  string `json:"open"`  // 15:04
	Close string `json:"close"` // 15:04
}

// Asset from GET /v2/assets.
type Asset struct {
	ID       string `json:"id"`
	Class    string `json:"class"`
	Exchange string `json:"exchange"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Tradable bool   `json:"tradable"`
}

// Bar is one OHLCV bar from the market data API.
type Bar struct {
	Timestamp string   `json:"t"`
	Open      float64  `json:"o"`
	High      float64  `json:"h"`
	Low       float64  `json:"l"`
	Close     float64  `json:"c"`
	Volume    float64  `json:"v"`
	Trades    int64    `json:"n"`
	VWAP      *float64 `json:"vw"`
}

// BarsResponse from GET /v2/stocks/{symbol}/bars
type BarsResponse struct {
	Bars          []Bar   `json:"bars"`
	Symbol        string  `json:"symbol"`
	NextPageToken *string `json:"next_page_token"`
}
