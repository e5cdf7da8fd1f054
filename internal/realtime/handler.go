package realtime

import (
	"encoding/json"
	"errors"
	"net/http"

	myMiddleware "taskhub/internal/middleware"
	"taskhub/internal/pkg/logger"

	"github.com/gorilla/websocket"
)

type Handler struct {
	hub      *Hub
	auth     *Authenticator
	upgrader websocket.Upgrader
	logger   logger.ILogger
}

// NewHandler builds the /ws endpoint. allowedOrigin "" or "*" accepts any
// origin.
func NewHandler(hub *Hub, auth *Authenticator, allowedOrigin string, log logger.ILogger) *Handler {
	return &Handler{
		hub:  hub,
		auth: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "" || allowedOrigin == "*" || origin == "" || origin == allowedOrigin
			},
		},
		logger: log,
	}
}

// ServeWs authenticates before upgrading, so a refused handshake never
// touches presence or rooms.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	ident, err := h.auth.Authenticate(r.Context(), myMiddleware.TokenFromRequest(r))
	if err != nil {
		h.logger.Warn("Session", "Handshake refused", map[string]interface{}{"error": err.Error(), "remote": r.RemoteAddr})
		message := "Authentication error"
		if errors.Is(err, ErrIdentityNotFound) {
			message = "User not found"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"message": message})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Session", "Upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}

	s := newSession(conn, ident)
	if err := h.hub.Register(r.Context(), s); err != nil {
		h.logger.Warn("Session", "Hub rejected session", map[string]interface{}{"error": err.Error()})
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	go s.writePump()
	go s.readPump(h.hub, h.logger)
}
