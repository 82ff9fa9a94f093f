package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/Harshitk-cp/smartcart/apps/kiosk-sim/internal/config"
	"github.com/Harshitk-cp/smartcart/apps/kiosk-sim/internal/hub"
	"github.com/Harshitk-cp/smartcart/libs/validate"
)

// SessionVar is the route variable holding the session id.
const SessionVar = "session_id"

// WebSocketHandler upgrades session socket requests and hands the
// connection to the hub
type WebSocketHandler struct {
	hub      *hub.Hub
	inbound  hub.Inbound
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cfg *config.Config, h *hub.Hub, inbound hub.Inbound, logger *slog.Logger) *WebSocketHandler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  cfg.WebSocket.BufferSize,
		WriteBufferSize: cfg.WebSocket.BufferSize,
		CheckOrigin: func(r *http.Request) bool {
			if !cfg.HTTP.EnableCORS {
				return true
			}

			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			for _, allowed := range cfg.HTTP.AllowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}

	return &WebSocketHandler{
		hub:      h,
		inbound:  inbound,
		logger:   logger,
		upgrader: upgrader,
	}
}

// ServeHTTP handles HTTP requests for session sockets
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)[SessionVar]
	if err := validate.Var(sessionID, "required,sessionid"); err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade connection", "session_id", sessionID, "error", err)
		return
	}

	if err := h.hub.Register(conn, sessionID, h.inbound); err != nil {
		h.logger.Warn("failed to register session", "session_id", sessionID, "error", err)
		conn.Close()
	}
}
