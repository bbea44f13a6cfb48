package alpaca

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rickgao/market-data/internal/auth"
)

// Default endpoints.
const (
	DefaultTradingURL = "https://paper-api.alpaca.markets"
	DefaultDataURL    = "https://data.alpaca.markets"
)

// Client provides access to the Alpaca REST APIs.
type Client struct {
	tradingURL string
	dataURL    string
	creds      *auth.Credentials
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration

	feed string
	now  func() time.Time
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a REST client. Empty URLs select the defaults.
func NewClient(tradingURL, dataURL string, creds *auth.Credentials, opts ...ClientOption) *Client {
	if tradingURL == "" {
		tradingURL = DefaultTradingURL
	}
	if dataURL == "" {
		dataURL = DefaultDataURL
	}
	c := &Client{
		tradingURL: tradingURL,
		dataURL:    dataURL,
		creds:      creds,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: time.Second,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithFeed selects the bar data feed ("iex" or "sip").
func WithFeed(feed string) ClientOption {
	return func(c *Client) {
		c.feed = feed
	}
}

// WithClock sets the time source used to validate fetch parameters.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}
