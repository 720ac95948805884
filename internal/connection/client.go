package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a single physical WebSocket transport. A Client connects once;
// reconnection means discarding it and creating a new one.
type Client interface {
	// Connect establishes the WebSocket connection.
	Connect(ctx context.Context) error

	// Close tears the connection down without the intentional-disconnect
	// close handshake. Used when the transport is already failed.
	Close() error

	// CloseIntentional sends close code 1000 with the client-disconnect
	// reason before closing, so the server never schedules a retry.
	CloseIntentional() error

	// Send writes one frame to the connection.
	Send(data []byte) error

	// Messages returns the channel of inbound frames, each stamped with
	// its local receive time.
	Messages() <-chan TimestampedMessage

	// Errors returns a channel carrying the first fatal transport error.
	Errors() <-chan error

	// IsConnected returns the current transport state.
	IsConnected() bool
}

// client implements Client over gorilla/websocket.
type client struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn *websocket.Conn

	messages chan TimestampedMessage
	errors   chan error
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	mu        sync.RWMutex
	connected bool
	closed    bool
}

// NewClient creates a new transport client.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 1000
	}

	return &client{
		cfg:      cfg,
		logger:   logger,
		messages: make(chan TimestampedMessage, cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection.
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
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	// Answer protocol-level pings; application liveness is handled by the
	// manager's heartbeat monitor, not here.
	conn.SetPingHandler(func(data string) error {
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	go c.readLoop()

	c.logger.Debug("websocket connected", "url", c.cfg.URL)
	return nil
}

// Close tears down the connection without a close handshake.
func (c *client) Close() error {
	return c.close(false)
}

// CloseIntentional performs the client-disconnect close handshake.
func (c *client) CloseIntentional() error {
	return c.close(true)
}

func (c *client) close(intentional bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	c.mu.Unlock()

	// Detach before closing: readLoop checks done and suppresses the
	// close-induced read error, so teardown never re-enters the error path.
	close(c.done)

	if c.conn != nil {
		if intentional {
			c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, CloseReasonClient),
				time.Now().Add(time.Second),
			)
		}
		return c.conn.Close()
	}

	return nil
}

// Send writes one frame to the connection.
func (c *client) Send(data []byte) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Messages returns the inbound frame channel.
func (c *client) Messages() <-chan TimestampedMessage {
	return c.messages
}

// Errors returns the transport error channel.
func (c *client) Errors() <-chan error {
	return c.errors
}

// IsConnected returns the current transport state.
func (c *client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// readLoop reads frames until the connection fails or is closed.
func (c *client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			// Errors caused by our own Close are not reported.
			select {
			case <-c.done:
				return
			default:
				select {
				case c.errors <- err:
				default:
				}
				return
			}
		}

		msg := TimestampedMessage{
			Data:       data,
			ReceivedAt: receivedAt,
		}

		select {
		case c.messages <- msg:
		case <-c.done:
			return
		default:
			c.logger.Warn("message buffer full, dropping frame")
		}
	}
}

// closeKind classifies a fatal transport error for the reconnect decision.
type closeKind int

const (
	closeTransient closeKind = iota // retry via backoff
	closeIntentional                // client disconnect, never retried
	closePolicy                     // server policy rejection, non-retryable
)

// classifyClose maps a transport error to its reconnect semantics: close
// code 1000 with the client-disconnect reason is intentional, 1008 (policy
// violation, used for connection-limit rejections) is non-retryable, and
// everything else (1006, read errors, timeouts) is transient.
func classifyClose(err error) closeKind {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return closeTransient
	}

	switch ce.Code {
	case websocket.CloseNormalClosure:
		if ce.Text == CloseReasonClient {
			return closeIntentional
		}
		return closeTransient
	case websocket.ClosePolicyViolation:
		return closePolicy
	default:
		return closeTransient
	}
}
