// Package channel maintains the kiosk's single duplex websocket to the
// backend: connect, send, inbound dispatch and bounded reconnect.
//
// A Channel belongs to a loop.Loop. Connect, Send and Close must be called on
// that loop; socket I/O happens on helper goroutines which hand results back
// with Post. State may be read from anywhere.
package channel

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/loop"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/metrics"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-client/internal/router"
	"github.com/Harshitk-cp/smartcart/libs/wire"
)

// Default connection constants.
const (
	DefaultBaseDelay      = 1000 * time.Millisecond
	DefaultMaxAttempts    = 5
	DefaultDialTimeout    = 10 * time.Second
	DefaultWriteWait      = 10 * time.Second
	DefaultMaxMessageSize = 16 * 1024 * 1024
	DefaultPingPeriod     = 30 * time.Second
	DefaultPongWait       = 60 * time.Second
	closeGracePeriod      = time.Second
)

// State is the connection state of a Channel.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	// Exhausted is terminal: the reconnect budget ran out.
	Exhausted
	// Closed is terminal: the owner tore the channel down.
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Exhausted:
		return "exhausted"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config configures a Channel.
type Config struct {
	// URL is the full websocket address including the session segment.
	URL    string
	Header http.Header

	// Reconnect attempt n waits BaseDelay*n. After MaxAttempts failed
	// attempts the channel gives up.
	BaseDelay   time.Duration
	MaxAttempts int

	DialTimeout    time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64

	// PingPeriod sends websocket control pings while connected. A
	// connection that stays silent for PongWait is treated as lost.
	PingPeriod time.Duration
	PongWait   time.Duration

	// HeartbeatInterval sends a ping message while connected. Zero disables.
	HeartbeatInterval time.Duration
}

func (c *Config) defaults() {
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.WriteWait <= 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.PongWait <= 0 {
		c.PongWait = DefaultPongWait
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
}

// StatusFunc observes state transitions. It runs on the loop.
type StatusFunc func(State)

// Option customises a Channel.
type Option func(*Channel)

// WithLogger sets the channel logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) { c.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m metrics.Collector) Option {
	return func(c *Channel) { c.metrics = m }
}

// WithStatus registers the state transition observer.
func WithStatus(fn StatusFunc) Option {
	return func(c *Channel) { c.onStatus = fn }
}

// Channel is the session's duplex connection.
type Channel struct {
	cfg      Config
	loop     *loop.Loop
	router   *router.Router
	dialer   *websocket.Dialer
	logger   *slog.Logger
	metrics  metrics.Collector
	onStatus StatusFunc

	state atomic.Int32

	// Owned by the loop.
	conn       *websocket.Conn
	gen        uint64
	attempts   int
	retry      *loop.Timer
	heartbeat  *loop.Timer
	stopPing   chan struct{}
	cancelDial context.CancelFunc

	writeMu sync.Mutex
}

// New creates a disconnected channel. Inbound messages go to r.
func New(cfg Config, l *loop.Loop, r *router.Router, opts ...Option) *Channel {
	cfg.defaults()
	c := &Channel{
		cfg:    cfg,
		loop:   l,
		router: r,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.DialTimeout,
			TLSClientConfig:  &tls.Config{MinVersion: tls.VersionTLS12},
		},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "channel")
	return c
}

// State returns the current state.
func (c *Channel) State() State {
	return State(c.state.Load())
}

// Attempts returns the number of reconnect attempts since the last
// successful connection. Loop only.
func (c *Channel) Attempts() int {
	return c.attempts
}

// Connect opens the connection. It is a no-op while connecting, connected
// or closed. Calling it after the channel gave up starts over with a fresh
// reconnect budget.
func (c *Channel) Connect() {
	switch c.State() {
	case Connecting, Connected, Closed:
		return
	case Exhausted:
		c.attempts = 0
	}
	c.retry.Stop()
	c.retry = nil
	c.dial()
}

func (c *Channel) dial() {
	c.gen++
	gen := c.gen
	c.setState(Connecting)
	c.metrics.ConnectAttempt()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DialTimeout)
	c.cancelDial = cancel

	c.logger.Debug("dialing", "url", c.cfg.URL, "attempt", c.attempts)
	go func() {
		defer cancel()
		conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil && resp != nil {
			err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		if !c.loop.Post(func() { c.dialed(gen, conn, err) }) && conn != nil {
			conn.Close()
		}
	}()
}

func (c *Channel) dialed(gen uint64, conn *websocket.Conn, err error) {
	if gen != c.gen || c.State() != Connecting {
		if conn != nil {
			conn.Close()
		}
		return
	}
	c.cancelDial = nil

	if err != nil {
		c.logger.Warn("connect failed", "error", err)
		c.setState(Disconnected)
		c.scheduleReconnect()
		return
	}

	conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn = conn
	c.attempts = 0
	c.stopPing = make(chan struct{})
	c.setState(Connected)
	c.logger.Info("connected", "url", c.cfg.URL)

	go c.readPump(gen, conn)
	go c.pingPump(gen, conn, c.stopPing)

	if c.cfg.HeartbeatInterval > 0 {
		c.heartbeat = c.loop.Every(c.cfg.HeartbeatInterval, func() {
			c.Send(wire.Ping{Timestamp: c.loop.Now().UTC().Format(wire.TimeLayout)})
		})
	}
}

func (c *Channel) readPump(gen uint64, conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.loop.Post(func() { c.lost(gen, err) })
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		c.loop.Post(func() { c.dispatch(gen, data) })
	}
}

// pingPump keeps the connection alive with control pings until stop is
// closed. WriteControl may run concurrently with Send.
func (c *Channel) pingPump(gen uint64, conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteWait)); err != nil {
				_ = conn.Close()
				c.loop.Post(func() { c.lost(gen, err) })
				return
			}
		}
	}
}

func (c *Channel) dispatch(gen uint64, data []byte) {
	if gen != c.gen || c.State() != Connected {
		return
	}
	t, err := c.router.Dispatch(data)
	c.metrics.MessageReceived(string(t), len(data))
	if err == nil {
		return
	}

	var (
		de *router.DecodeError
		he *router.HandlerError
	)
	switch {
	case errors.Is(err, router.ErrUnknownType):
		c.logger.Debug("unhandled message type", "type", t)
	case errors.As(err, &de):
		c.metrics.DispatchError(string(t), "decode")
		c.logger.Warn("dropping malformed message", "type", t, "error", err)
	case errors.As(err, &he):
		kind := "handler"
		if he.Panic {
			kind = "panic"
		}
		c.metrics.DispatchError(string(t), kind)
		c.logger.Error("message handler failed", "type", t, "error", err)
	default:
		c.metrics.DispatchError(string(t), "unknown")
		c.logger.Error("dispatch failed", "type", t, "error", err)
	}
}

func (c *Channel) lost(gen uint64, err error) {
	if gen != c.gen || c.State() != Connected {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		c.logger.Info("connection closed by server")
	} else {
		c.logger.Warn("connection lost", "error", err)
	}
	c.dropConn()
	c.setState(Disconnected)
	c.scheduleReconnect()
}

func (c *Channel) scheduleReconnect() {
	if c.attempts >= c.cfg.MaxAttempts {
		c.logger.Error("giving up reconnecting", "attempts", c.attempts)
		c.metrics.ReconnectExhausted()
		c.setState(Exhausted)
		return
	}
	c.attempts++
	delay := c.cfg.BaseDelay * time.Duration(c.attempts)
	c.metrics.ReconnectScheduled(c.attempts)
	c.logger.Info("reconnecting", "attempt", c.attempts, "max_attempts", c.cfg.MaxAttempts, "delay", delay)

	c.retry = c.loop.AfterFunc(delay, func() {
		c.retry = nil
		if c.State() == Disconnected {
			c.dial()
		}
	})
}

// Send writes m if the channel is connected and reports whether it did.
// Messages sent while not connected are dropped; nothing is queued.
func (c *Channel) Send(m wire.Outbound) bool {
	t := string(m.MessageType())
	if c.State() != Connected || c.conn == nil {
		c.metrics.MessageDropped(t)
		c.logger.Debug("dropping outbound message, not connected", "type", t, "state", c.State())
		return false
	}

	data, err := wire.Encode(m)
	if err != nil {
		c.logger.Error("encode outbound message", "type", t, "error", err)
		return false
	}

	c.writeMu.Lock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		c.logger.Warn("set write deadline", "error", err)
	}
	err = c.conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		// A failed write leaves the socket unusable but open; close it so
		// the read pump stops too, then reconnect.
		c.logger.Warn("write failed", "type", t, "error", err)
		c.metrics.MessageDropped(t)
		_ = c.conn.Close()
		gen := c.gen
		c.loop.Post(func() { c.lost(gen, err) })
		return false
	}
	c.metrics.MessageSent(t, len(data))
	return true
}

// Close tears the channel down for good and cancels any pending reconnect.
func (c *Channel) Close() {
	if c.State() == Closed {
		return
	}
	c.retry.Stop()
	c.retry = nil
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	c.gen++
	c.dropConn()
	c.setState(Closed)
	c.logger.Info("channel closed")
}

func (c *Channel) dropConn() {
	c.heartbeat.Stop()
	c.heartbeat = nil
	if c.stopPing != nil {
		close(c.stopPing)
		c.stopPing = nil
	}
	if c.conn == nil {
		return
	}
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGracePeriod))
	c.writeMu.Unlock()
	_ = c.conn.Close()
	c.conn = nil
}

func (c *Channel) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	c.metrics.ChannelState(s.String())
	if c.onStatus != nil {
		c.onStatus(s)
	}
}
