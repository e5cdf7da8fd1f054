package realtime

import (
	"encoding/json"
	"time"

	"taskhub/internal/identity"
	"taskhub/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Must be less than pongWait.
	maxMessageSize = 64 * 1024           // Task payloads are relayed verbatim.
	sendBufferSize = 256
)

// Session is one authenticated connection. The identity is fixed for the
// session's lifetime.
type Session struct {
	ID          uuid.UUID
	Identity    identity.Identity
	ConnectedAt time.Time

	conn *websocket.Conn
	// Outbound frames. Only the hub sends on or closes it.
	send   chan []byte
	closed bool
}

func newSession(conn *websocket.Conn, ident identity.Identity) *Session {
	return &Session{
		ID:          uuid.New(),
		Identity:    ident,
		ConnectedAt: time.Now(),
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
	}
}

// close is called by the hub loop only.
func (s *Session) close() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

// readPump pumps messages from the websocket connection to the hub.
func (s *Session) readPump(h *Hub, log logger.ILogger) {
	defer func() {
		h.Unregister(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("Session", "Unexpected close", map[string]interface{}{"session": s.ID, "error": err.Error()})
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Event == "" {
			log.Warn("Session", "Ignoring unparseable frame", map[string]interface{}{"session": s.ID})
			continue
		}
		h.Dispatch(s, env)
	}
}

// writePump pumps messages from the hub to the websocket connection. Each
// message is its own frame.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
