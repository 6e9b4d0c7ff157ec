// Package rpc is a minimal JSON-RPC 2.0 client for Substrate nodes over
// WebSocket, covering the legacy chain_* and state_* methods needed to fetch
// blocks, metadata and storage at historic heights.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ashita-ai/kiroku/internal/ratelimit"
)

// DefaultMaxMessageBytes bounds a single response. Nodes reject larger
// responses themselves, but a local limit keeps a misbehaving one from
// exhausting memory.
const DefaultMaxMessageBytes = 64 << 20

var (
	// ErrClosed is returned by calls on a client whose connection has ended.
	ErrClosed = errors.New("rpc: connection closed")

	// ErrOversized marks responses that were too large to deliver, either
	// refused by the node or cut off by the local read limit.
	ErrOversized = errors.New("rpc: response too large")
)

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Client is one WebSocket connection to a node. Calls may be made
// concurrently; responses are matched to requests by id.
type Client struct {
	url     string
	conn    *websocket.Conn
	limiter ratelimit.Limiter
	logger  *slog.Logger

	nextID  atomic.Uint64
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uint64]chan response
	err     error

	closed    chan struct{}
	closeOnce sync.Once
}

type settings struct {
	limiter          ratelimit.Limiter
	logger           *slog.Logger
	maxMessageBytes  int64
	handshakeTimeout time.Duration
}

// Option configures Dial.
type Option func(*settings)

// WithLimiter throttles calls through l, keyed by the endpoint URL.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(s *settings) { s.limiter = l }
}

// WithLogger sets the logger used for connection level events.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithMaxMessageBytes sets the largest response the client will read.
func WithMaxMessageBytes(n int64) Option {
	return func(s *settings) { s.maxMessageBytes = n }
}

// WithHandshakeTimeout bounds the WebSocket handshake.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(s *settings) { s.handshakeTimeout = d }
}

// Dial connects to a node at url (ws:// or wss://).
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	s := settings{
		limiter:          ratelimit.NoopLimiter{},
		logger:           slog.New(slog.DiscardHandler),
		maxMessageBytes:  DefaultMaxMessageBytes,
		handshakeTimeout: 10 * time.Second,
	}
	for _, o := range opts {
		o(&s)
	}

	dialer := websocket.Dialer{HandshakeTimeout: s.handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", url, err)
	}
	if s.maxMessageBytes > 0 {
		conn.SetReadLimit(s.maxMessageBytes)
	}

	c := &Client{
		url:     url,
		conn:    conn,
		limiter: s.limiter,
		logger:  s.logger,
		pending: make(map[uint64]chan response),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// URL returns the endpoint the client is connected to.
func (c *Client) URL() string { return c.url }

// Err returns the reason the connection ended, or nil while it is open.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Call invokes method with params and decodes the result into result,
// which may be nil to discard it. A null result leaves result untouched.
func (c *Client) Call(ctx context.Context, method string, result any, params ...any) error {
	if err := c.limiter.Wait(ctx, c.url); err != nil {
		return fmt.Errorf("rpc: %s: %w", method, err)
	}
	if params == nil {
		params = []any{}
	}

	id := c.nextID.Add(1)
	ch := make(chan response, 1)
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return fmt.Errorf("rpc: %s: %w", method, err)
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer c.forget(id)

	data, err := json.Marshal(request{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("rpc: %s: encode params: %w", method, err)
	}
	c.writeMu.Lock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
	} else {
		_ = c.conn.SetWriteDeadline(time.Time{})
	}
	err = c.conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		c.fail(err)
		return fmt.Errorf("rpc: %s: write: %w", method, err)
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return fmt.Errorf("rpc: %s: %w", method, resp.Error)
		}
		if result == nil || len(resp.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("rpc: %s: decode result: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("rpc: %s: %w", method, ctx.Err())
	case <-c.closed:
		return fmt.Errorf("rpc: %s: %w", method, c.Err())
	}
}

// Close ends the connection. Calls in flight fail with ErrClosed.
func (c *Client) Close() error {
	c.fail(ErrClosed)
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// fail records the first terminal error and wakes every waiting call.
func (c *Client) fail(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.closed)
	})
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				err = fmt.Errorf("%w: %w", ErrOversized, err)
			} else if !errors.Is(c.Err(), ErrClosed) {
				err = fmt.Errorf("rpc: read: %w", err)
			}
			if c.Err() == nil {
				c.logger.Warn("rpc: connection lost", "url", c.url, "error", err)
			}
			c.fail(err)
			_ = c.conn.Close()
			return
		}

		var resp response
		if err := json.Unmarshal(data, &resp); err != nil {
			c.logger.Warn("rpc: ignoring malformed message", "url", c.url, "error", err)
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		c.mu.Unlock()
		if !ok {
			// Subscription notifications and responses to abandoned calls.
			continue
		}
		select {
		case ch <- resp:
		default:
		}
	}
}
