package model

// Broker identifies a market data provider.
type Broker string

const (
	Alpaca  Broker = "Alpaca"
	Binance Broker = "Binance"
)

// Brokers returns every supported provider.
func Brokers() []Broker { return []Broker{Alpaca, Binance} }

// Valid reports whether b is a supported provider.
func (b Broker) Valid() bool {
	for _, v := range Brokers() {
		if b == v {
			return true
		}
	}
	return false
}

// AssetClass is the type of a tradable asset.
type AssetClass string

const (
	Equity AssetClass = "Equity"
	Crypto AssetClass = "Crypto"
	Forex  AssetClass = "Forex"
	Option AssetClass = "Option"
	Future AssetClass = "Future"
)

// AssetClasses returns every asset class.
func AssetClasses() []AssetClass { return []AssetClass{Equity, Crypto, Forex, Option, Future} }

// AssetStatus tells whether an asset can currently be traded at the broker.
type AssetStatus string

const (
	Active   AssetStatus = "Active"
	Inactive AssetStatus = "Inactive"
)

// AssetStatuses returns every asset status.
func AssetStatuses() []AssetStatus { return []AssetStatus{Active, Inactive} }

func names[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
