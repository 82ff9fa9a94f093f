package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Harshitk-cp/smartcart/apps/kiosk-sim/internal/metrics"
	"github.com/Harshitk-cp/smartcart/libs/wire"
)

// ErrStopped is returned when registering with a hub that has shut down.
var ErrStopped = errors.New("hub stopped")

// Inbound receives session lifecycle events and messages from kiosks.
type Inbound interface {
	Connected(sessionID string)
	HandleMessage(sessionID string, data []byte)
	Disconnected(sessionID string)
}

// Config tunes the per-connection pumps
type Config struct {
	MaxMessageSize int64
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	SendBuffer     int
}

// client is one connected kiosk session
type client struct {
	hub       *Hub
	conn      *websocket.Conn
	sessionID string
	inbound   Inbound
	send      chan []byte

	// closed by Run once the client is in the map
	registered chan struct{}
}

// Hub maintains the set of connected sessions and delivers messages to them.
// At most one connection exists per session id; a new connection replaces
// the old one.
type Hub struct {
	cfg     Config
	logger  *slog.Logger
	metrics metrics.Collector

	// Registered clients
	clients map[string]*client

	// Register requests from clients
	register chan *client

	// Unregister requests from clients
	unregister chan *client

	// Lock for clients map
	mu sync.RWMutex

	done chan struct{}
}

// New creates a new hub
func New(cfg Config, logger *slog.Logger, m metrics.Collector) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	return &Hub{
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
		clients:    make(map[string]*client),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Run processes registrations until ctx is cancelled, then closes every
// connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[c.sessionID]; ok {
				h.logger.Info("session reconnected, replacing connection", "session_id", c.sessionID)
				h.drop(old)
			}
			h.clients[c.sessionID] = c
			h.mu.Unlock()
			close(c.registered)
			h.metrics.SessionConnected()
			h.logger.Info("session registered", "session_id", c.sessionID)

		case c := <-h.unregister:
			h.mu.Lock()
			if cur, ok := h.clients[c.sessionID]; ok && cur == c {
				h.drop(c)
				h.logger.Info("session unregistered", "session_id", c.sessionID)
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for _, c := range h.clients {
				c.conn.Close()
				h.drop(c)
			}
			h.mu.Unlock()
			return
		}
	}
}

// drop removes c from the map and closes its send queue. h.mu must be held.
func (h *Hub) drop(c *client) {
	delete(h.clients, c.sessionID)
	close(c.send)
	h.metrics.SessionDisconnected()
}

// Register attaches a websocket connection to a session and starts its
// pumps. Messages read from the connection go to in.
func (h *Hub) Register(conn *websocket.Conn, sessionID string, in Inbound) error {
	c := &client{
		hub:        h,
		conn:       conn,
		sessionID:  sessionID,
		inbound:    in,
		send:       make(chan []byte, h.cfg.SendBuffer),
		registered: make(chan struct{}),
	}

	select {
	case h.register <- c:
	case <-h.done:
		return ErrStopped
	}
	select {
	case <-c.registered:
	case <-h.done:
		return ErrStopped
	}

	go c.writePump()
	in.Connected(sessionID)
	go c.readPump()
	return nil
}

// Send queues a message for a session. It reports false when the session is
// not connected or its queue is full; a full queue drops the connection.
func (h *Hub) Send(sessionID string, data []byte) bool {
	h.mu.RLock()
	c, ok := h.clients[sessionID]
	if !ok {
		h.mu.RUnlock()
		return false
	}
	select {
	case c.send <- data:
		h.mu.RUnlock()
		if t, err := wire.PeekType(data); err == nil {
			h.metrics.MessageSent(string(t), len(data))
		}
		return true
	default:
		h.mu.RUnlock()
	}

	h.logger.Warn("send queue full, dropping session", "session_id", sessionID)
	c.conn.Close()
	return false
}

// Connected reports whether a session currently has a live connection.
func (h *Hub) Connected(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[sessionID]
	return ok
}

// Sessions returns the number of connected sessions.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump pumps messages from the connection to the inbound handler
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
		c.inbound.Disconnected(c.sessionID)
	}()

	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("session read error", "session_id", c.sessionID, "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
		c.inbound.HandleMessage(c.sessionID, message)
	}
}

// writePump pumps queued messages to the connection, one JSON document per
// websocket message, and keeps the connection alive with pings.
func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
