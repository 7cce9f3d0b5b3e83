package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/driftpad/driftpad/logger"
)

// WebSocket timing constants. pingPeriod must be shorter than pongWait.
// See: https://github.com/gorilla/websocket/blob/master/examples/chat/client.go
const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second

	// The feed is outbound-only; inbound frames are control traffic
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// cursorMessage tells a connected device its pull cursor is behind.
type cursorMessage struct {
	Type   string `json:"type"`
	Cursor int64  `json:"cursor"`
}

// wsClient is one connected device.
type wsClient struct {
	userID string
	conn   *websocket.Conn
	send   chan cursorMessage
}

// hub fans cursor notifications out to each user's connected devices. A
// client whose send buffer is full misses the notification; the next pull
// or notification catches it up, so nothing blocks on a slow reader.
type hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]bool
	logger  *zap.SugaredLogger
}

func newHub(log *zap.SugaredLogger) *hub {
	return &hub{
		clients: make(map[*wsClient]bool),
		logger:  log,
	}
}

func (h *hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

func (h *hub) unregister(c *wsClient) {
	h.mu.Lock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// notifyCursor tells every device of userID that the change log advanced.
func (h *hub) notifyCursor(userID string, cursor int64) {
	msg := cursorMessage{Type: "cursor", Cursor: cursor}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.userID != userID {
			continue
		}
		select {
		case c.send <- msg:
		default:
			// Buffer full - skip
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		c.conn.Close()
	}
	h.mu.Unlock()
}

// handleWebSocket upgrades the connection and attaches it to the change
// feed for the calling user.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("websocket upgrade failed",
			logger.FieldUserID, userID,
			logger.FieldError, err)
		return
	}

	client := &wsClient{
		userID: userID,
		conn:   conn,
		send:   make(chan cursorMessage, 16),
	}
	s.hub.register(client)

	s.logger.Debugw("websocket client connected",
		logger.FieldUserID, userID,
		logger.FieldAddress, r.RemoteAddr)

	go s.writePump(client)
	go s.readPump(client)
}

func (s *Server) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains inbound frames so pongs are processed; the feed carries
// no client-to-server messages.
func (s *Server) readPump(c *wsClient) {
	defer func() {
		s.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
