package stream

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rickgao/market-data/internal/alpaca"
	"github.com/rickgao/market-data/internal/auth"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrAuth            = errors.New("stream authentication failed")
)

// Message types.
const (
	TypeSuccess      = "success"
	TypeError        = "error"
	TypeSubscription = "subscription"
	TypeBar          = "b"
)

// Bar is one minute bar pushed by the stream.
type Bar struct {
	Type   string `json:"T"` // keeps "T" from case-folding onto "t"
	Symbol string `json:"S"`
	alpaca.Bar

	ReceivedAt time.Time `json:"-"`
}

// message is any element of a stream frame. Frames are JSON arrays.
type message struct {
	Type string          `json:"T"`
	Time json.RawMessage `json:"t,omitempty"` // keeps "t" from case-folding onto "T"
	Msg  string          `json:"msg,omitempty"`
	Code int             `json:"code,omitempty"`
}

// subscribe is the subscription request.
type subscribe struct {
	Action string   `json:"action"`
	Bars   []string `json:"bars"`
}

// Config configures a stream client.
type Config struct {
	URL              string // e.g. wss://stream.data.alpaca.markets/v2/iex
	Credentials      *auth.Credentials
	Symbols          []string      // bar subscriptions; "*" for all
	PingTimeout      time.Duration // Max time without ping/pong before the connection is stale
	WriteTimeout     time.Duration // Write deadline for sends
	HandshakeTimeout time.Duration
	BufferSize       int // Bar channel buffer size

	ReconnectBaseWait time.Duration
	ReconnectMaxWait  time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:               "wss://stream.data.alpaca.markets/v2/iex",
		PingTimeout:       60 * time.Second,
		WriteTimeout:      5 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		BufferSize:        10000,
		ReconnectBaseWait: time.Second,
		ReconnectMaxWait:  60 * time.Second,
	}
}
