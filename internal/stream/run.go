package stream

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rickgao/market-data/internal/metrics"
)

// Run keeps a stream connected and passes every bar to sink until ctx is
// done. Dropped connections are redialed with exponential backoff. An
// authentication failure stops Run and is returned.
func Run(ctx context.Context, cfg Config, m *metrics.Metrics, logger *slog.Logger, sink func(Bar)) error {
	if logger == nil {
		logger = slog.Default()
	}
	base := cfg.ReconnectBaseWait
	if base <= 0 {
		base = time.Second
	}
	maxWait := max(cfg.ReconnectMaxWait, base)

	wait := base
	for {
		c := NewClient(cfg, m, logger)
		err := c.Connect(ctx)
		if err == nil {
			wait = base
			err = forward(ctx, c, sink)
		}
		c.Close()

		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrAuth) {
			return err
		}

		logger.Warn("stream disconnected, reconnecting", "error", err, "backoff", wait)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
		wait = min(wait*2, maxWait)
	}
}

// forward passes bars to sink until the client fails or ctx is done. Bars
// already buffered when the connection fails are still delivered.
func forward(ctx context.Context, c Client, sink func(Bar)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b := <-c.Bars():
			sink(b)
		case err := <-c.Errors():
			for {
				select {
				case b := <-c.Bars():
					sink(b)
				default:
					return err
				}
			}
		}
	}
}
