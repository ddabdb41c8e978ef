// Package transport carries panel commands to the controller and controller
// snapshots back over a websocket.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/gwillem/roverpanel/pkg/protocol"
)

// ErrClosed is returned by Dial and Start after Close.
var ErrClosed = errors.New("transport closed")

const (
	defaultQueueSize    = 64
	defaultEventsSize   = 64
	defaultWriteWait    = 5 * time.Second
	defaultPingInterval = 5 * time.Second
	defaultPongWait     = 15 * time.Second
	defaultMinBackoff   = 500 * time.Millisecond
	defaultMaxBackoff   = 30 * time.Second
	readLimit           = 1 << 20
)

// Config holds websocket client configuration.
type Config struct {
	URL string

	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
	MaxAttempts  int // reconnect attempts per outage, 0 retries forever
	QueueSize    int

	Logger zerolog.Logger
}

func (c *Config) setDefaults() {
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.PongWait <= 0 {
		c.PongWait = defaultPongWait
	}
	if c.WriteWait <= 0 {
		c.WriteWait = defaultWriteWait
	}
	if c.MinBackoff <= 0 {
		c.MinBackoff = defaultMinBackoff
	}
	if c.MaxBackoff < c.MinBackoff {
		c.MaxBackoff = max(defaultMaxBackoff, c.MinBackoff)
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
}

// Client is a reconnecting websocket client. One goroutine owns the
// connection and does all writes; a second one per connection reads.
//
// Emit never blocks and never queues across a disconnect: commands issued
// while offline are dropped, so nothing stale is replayed on reconnect.
type Client struct {
	cfg    Config
	log    zerolog.Logger
	dialer ws.Dialer

	sendCh chan []byte
	events chan protocol.Inbound
	done   chan struct{}

	connected atomic.Bool
	started   atomic.Bool
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a client. Call Start to connect.
func New(cfg Config) *Client {
	cfg.setDefaults()
	return &Client{
		cfg: cfg,
		log: cfg.Logger,
		dialer: ws.Dialer{
			HandshakeTimeout: 10 * time.Second,
			NetDialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 15 * time.Second,
			}).DialContext,
		},
		sendCh: make(chan []byte, cfg.QueueSize),
		events: make(chan protocol.Inbound, defaultEventsSize),
		done:   make(chan struct{}),
	}
}

// Dial connects once and, on success, keeps the connection alive in the
// background until ctx is done or Close is called.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	c := New(cfg)
	conn, err := c.dialOnce(ctx)
	if err != nil {
		return nil, err
	}
	c.started.Store(true)
	c.wg.Add(1)
	go c.run(ctx, conn)
	return c, nil
}

// Start connects in the background, retrying until the first connection
// succeeds, and reconnects after every outage.
func (c *Client) Start(ctx context.Context) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("transport already started")
	}
	c.wg.Add(1)
	go c.run(ctx, nil)
	return nil
}

// Events returns inbound controller messages plus synthetic connect and
// disconnect events. It is closed after Close.
func (c *Client) Events() <-chan protocol.Inbound {
	return c.events
}

// Connected reports whether a connection is currently up.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Emit queues a command for sending. It drops the command when offline or
// when the queue is full.
func (c *Client) Emit(event string, payload any) {
	if !c.connected.Load() {
		c.log.Debug().Str("event", event).Msg("Dropping command while offline")
		return
	}
	data, err := protocol.Marshal(event, payload)
	if err != nil {
		c.log.Warn().Err(err).Str("event", event).Msg("Cannot encode command")
		return
	}
	select {
	case c.sendCh <- data:
	default:
		c.log.Warn().Str("event", event).Msg("Send queue full, dropping command")
	}
}

// Close disconnects and stops reconnecting. It is safe to call more than
// once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.wg.Wait()
		if !c.started.Load() {
			close(c.events)
		}
	})
	return nil
}

func (c *Client) dialOnce(ctx context.Context) (*ws.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	conn.SetReadLimit(readLimit)
	return conn, nil
}

// run owns the connection lifecycle: serve, then redial with exponential
// backoff, until shutdown.
func (c *Client) run(ctx context.Context, conn *ws.Conn) {
	defer c.wg.Done()
	defer close(c.events)

	for {
		if conn == nil {
			var err error
			conn, err = c.redial(ctx)
			if err != nil {
				if !errors.Is(err, ErrClosed) {
					c.log.Error().Err(err).Msg("Giving up on controller connection")
				}
				return
			}
		}

		if !c.serve(ctx, conn) {
			return
		}
		conn = nil
	}
}

func (c *Client) redial(ctx context.Context) (*ws.Conn, error) {
	backoff := c.cfg.MinBackoff
	for attempt := 1; c.cfg.MaxAttempts == 0 || attempt <= c.cfg.MaxAttempts; attempt++ {
		conn, err := c.dialOnce(ctx)
		if err == nil {
			return conn, nil
		}
		c.log.Debug().Err(err).Int("attempt", attempt).Dur("backoff", backoff).Msg("Reconnect failed")

		t := time.NewTimer(backoff)
		select {
		case <-c.done:
			t.Stop()
			return nil, ErrClosed
		case <-ctx.Done():
			t.Stop()
			return nil, ErrClosed
		case <-t.C:
		}
		backoff = min(backoff*2, c.cfg.MaxBackoff)
	}
	return nil, fmt.Errorf("reconnect failed after %d attempts", c.cfg.MaxAttempts)
}

// serve runs one connection until it fails or the client shuts down. It
// reports whether the client should reconnect.
func (c *Client) serve(ctx context.Context, conn *ws.Conn) bool {
	c.drainQueue()
	c.connected.Store(true)
	c.log.Info().Str("url", c.cfg.URL).Msg("Connected to controller")
	c.push(protocol.Inbound{Event: protocol.EventConnect})

	readErr := make(chan error, 1)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		readErr <- c.readLoop(conn)
	}()

	reconnect := c.writeLoop(ctx, conn, readErr)

	c.connected.Store(false)
	if !reconnect {
		_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
		_ = conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
	}
	_ = conn.Close()
	<-readDone

	c.log.Warn().Msg("Disconnected from controller")
	c.push(protocol.Inbound{Event: protocol.EventDisconnect})
	return reconnect
}

func (c *Client) writeLoop(ctx context.Context, conn *ws.Conn, readErr <-chan error) bool {
	ping := time.NewTicker(c.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-c.done:
			c.flush(conn)
			return false
		case <-ctx.Done():
			return false
		case err := <-readErr:
			c.log.Warn().Err(err).Msg("WebSocket read error")
			return true
		case data := <-c.sendCh:
			_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.log.Warn().Err(err).Msg("WebSocket write error")
				return true
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := conn.WriteMessage(ws.PingMessage, nil); err != nil {
				c.log.Warn().Err(err).Msg("WebSocket ping error")
				return true
			}
		}
	}
}

func (c *Client) readLoop(conn *ws.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))

		in, err := protocol.Unmarshal(msg)
		if err != nil {
			c.log.Debug().Err(err).Msg("Ignoring malformed frame")
			continue
		}
		c.push(in)
	}
}

// push delivers an event unless the client is shutting down.
func (c *Client) push(in protocol.Inbound) {
	select {
	case c.events <- in:
	case <-c.done:
	}
}

// flush writes whatever is still queued, so a final stop issued right
// before Close reaches the controller.
func (c *Client) flush(conn *ws.Conn) {
	for {
		select {
		case data := <-c.sendCh:
			_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

// drainQueue discards commands queued for a connection that is gone.
func (c *Client) drainQueue() {
	for {
		select {
		case <-c.sendCh:
		default:
			return
		}
	}
}
