// Package stream is a WebSocket client for the Alpaca market data stream.
//
// Connect performs the whole handshake (connected, auth, subscription) before
// returning. After that, minute bars are pushed on Bars() until the
// connection fails or is closed. Run wraps a client with reconnection.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/market-data/internal/metrics"
)

// Client represents a single stream connection.
type Client interface {
	// Connect dials, authenticates and subscribes.
	Connect(ctx context.Context) error

	// Close gracefully closes the connection.
	Close() error

	// Bars returns a channel of received bars.
	Bars() <-chan Bar

	// Errors returns a channel of connection errors.
	Errors() <-chan error

	// IsConnected returns current connection state.
	IsConnected() bool
}

type client struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	conn *websocket.Conn

	bars   chan Bar
	errors chan error
	done   chan struct{}

	writeMu sync.Mutex

	mu         sync.RWMutex
	connected  bool
	lastPingAt time.Time
	closed     bool
}

// NewClient creates a stream client. m may be nil.
func NewClient(cfg Config, m *metrics.Metrics, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &client{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		bars:    make(chan Bar, cfg.BufferSize),
		errors:  make(chan error, 1),
		done:    make(chan struct{}),
	}
}

// Connect establishes the connection and completes the handshake.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}

	if err := c.handshake(conn); err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.lastPingAt = time.Now()
	c.mu.Unlock()

	conn.SetPingHandler(func(data string) error {
		c.touch()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})
	conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	go c.readLoop()
	go c.heartbeatLoop()

	c.logger.Info("stream connected", "url", c.cfg.URL, "symbols", len(c.cfg.Symbols))
	return nil
}

// handshake waits for the welcome message, then authenticates and subscribes.
func (c *client) handshake(conn *websocket.Conn) error {
	if c.cfg.HandshakeTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
		defer conn.SetReadDeadline(time.Time{})
	}

	if err := expect(conn, TypeSuccess, "connected"); err != nil {
		return err
	}
	if creds := c.cfg.Credentials; creds != nil {
		if err := c.writeJSON(conn, creds.StreamMessage()); err != nil {
			return fmt.Errorf("send auth: %w", err)
		}
		if err := expect(conn, TypeSuccess, "authenticated"); err != nil {
			return err
		}
	}
	if len(c.cfg.Symbols) > 0 {
		if err := c.writeJSON(conn, subscribe{Action: "subscribe", Bars: c.cfg.Symbols}); err != nil {
			return fmt.Errorf("send subscribe: %w", err)
		}
		if err := expect(conn, TypeSubscription, ""); err != nil {
			return err
		}
	}
	return nil
}

// expect reads one frame and requires a message of the given type, and msg
// when set.
func expect(conn *websocket.Conn, typ, msg string) error {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read %s: %w", typ, err)
	}
	var msgs []message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return fmt.Errorf("decode %s: %w", typ, err)
	}
	for _, m := range msgs {
		if m.Type == TypeError {
			return streamError(m)
		}
		if m.Type == typ && (msg == "" || m.Msg == msg) {
			return nil
		}
	}
	return fmt.Errorf("unexpected stream message %s, want %s", data, typ)
}

func streamError(m message) error {
	switch m.Code {
	case 401, 402, 404:
		return fmt.Errorf("%w: %s (code %d)", ErrAuth, m.Msg, m.Code)
	}
	return fmt.Errorf("stream error %d: %s", m.Code, m.Msg)
}

func (c *client) writeJSON(conn *websocket.Conn, v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteJSON(v)
}

func (c *client) touch() {
	c.mu.Lock()
	c.lastPingAt = time.Now()
	c.mu.Unlock()
}

// Close gracefully closes the connection.
func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	close(c.done)

	if conn != nil {
		c.writeMu.Lock()
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		return conn.Close()
	}
	return nil
}

// Bars returns the bar channel.
func (c *client) Bars() <-chan Bar {
	return c.bars
}

// Errors returns the errors channel.
func (c *client) Errors() <-chan error {
	return c.errors
}

// IsConnected returns the current connection state.
func (c *client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *client) fail(err error) {
	select {
	case c.errors <- err:
	default:
	}
}

// readLoop decodes frames and forwards bars.
func (c *client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		receivedAt := time.Now()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.fail(err)
			}
			return
		}

		if err := c.dispatch(data, receivedAt); err != nil {
			c.fail(err)
			return
		}
	}
}

// dispatch handles one frame. A stream error message ends the connection.
func (c *client) dispatch(data []byte, receivedAt time.Time) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		c.logger.Warn("undecodable stream frame", "error", err, "size", len(data))
		return nil
	}

	for _, r := range raw {
		var m message
		if err := json.Unmarshal(r, &m); err != nil {
			continue
		}
		c.metrics.StreamMessage(m.Type)

		switch m.Type {
		case TypeBar:
			var b Bar
			if err := json.Unmarshal(r, &b); err != nil {
				c.logger.Warn("undecodable bar", "error", err)
				continue
			}
			b.ReceivedAt = receivedAt
			select {
			case c.bars <- b:
			case <-c.done:
				return nil
			default:
				c.logger.Warn("bar buffer full, dropping bar", "symbol", b.Symbol)
			}
		case TypeError:
			return streamError(m)
		default:
			c.logger.Debug("ignoring stream message", "type", m.Type)
		}
	}
	return nil
}

// heartbeatLoop pings the server and detects stale connections.
func (c *client) heartbeatLoop() {
	interval := c.cfg.PingTimeout / 2
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), time.Now().Add(c.cfg.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}

			c.mu.RLock()
			lastPing := c.lastPingAt
			c.mu.RUnlock()

			if c.cfg.PingTimeout > 0 && time.Since(lastPing) > c.cfg.PingTimeout {
				c.logger.Warn("no ping received, connection stale",
					"last_ping", lastPing,
					"timeout", c.cfg.PingTimeout,
				)
				c.fail(ErrStaleConnection)
				return
			}
		}
	}
}
