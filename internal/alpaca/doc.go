// Package alpaca is a REST client for the Alpaca trading and market data
// APIs. It fetches calendars, assets and bars and converts them into frames
// ready for validation.
//
// Calendar sessions are published as America/New_York wall-clock times and
// are converted to UTC. Bar requests follow next_page_token until the range
// or the limit is exhausted.
package alpaca
