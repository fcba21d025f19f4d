package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wricardo/connectn/game/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	// Outbound messages buffered per client before it is dropped as too slow.
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one live connection of a participant to a session
type Client struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	sessionID     string
	participantID string

	done        chan struct{}
	closeOnce   sync.Once
	closeCode   int
	closeReason string
}

func newClient(hub *Hub, conn *websocket.Conn, sessionID, participantID string) *Client {
	return &Client{
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, sendBufferSize),
		sessionID:     sessionID,
		participantID: participantID,
		done:          make(chan struct{}),
	}
}

// SessionID returns the session the client is attached to
func (c *Client) SessionID() string { return c.sessionID }

// ParticipantID returns the identity the client authenticated as
func (c *Client) ParticipantID() string { return c.participantID }

// enqueue hands data to the write pump without blocking. A client whose
// buffer is full is closed.
func (c *Client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		c.closeWith(websocket.CloseTryAgainLater, "slow consumer")
		return false
	}
}

// closeWith asks the write pump to send a close frame and hang up. Only the
// first call has an effect.
func (c *Client) closeWith(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.done)
	})
}

// Hub is the per-session connection registry: at most one client per
// participant per session
type Hub struct {
	sessions map[string]map[string]*Client
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewHub creates an empty connection registry
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]map[string]*Client),
		logger:   logger,
	}
}

// Register stores the client, closing any client previously registered for
// the same participant with REDUNDANT_CONNECTION. It reports whether a
// prior client was superseded.
func (h *Hub) Register(client *Client) bool {
	h.mu.Lock()
	clients, ok := h.sessions[client.sessionID]
	if !ok {
		clients = make(map[string]*Client)
		h.sessions[client.sessionID] = clients
	}
	previous := clients[client.participantID]
	clients[client.participantID] = client
	total := len(clients)
	h.mu.Unlock()

	if previous != nil && previous != client {
		previous.closeWith(protocol.CloseRedundantConnection, protocol.CloseReason(protocol.CloseRedundantConnection))
		h.logger.Info("superseded connection",
			"session_id", client.sessionID, "participant_id", client.participantID)
	}

	h.logger.Debug("client registered",
		"session_id", client.sessionID, "participant_id", client.participantID, "clients", total)
	return previous != nil && previous != client
}

// Unregister removes the client if it is still the registered one for its
// participant, dropping the session's map once empty. It reports whether
// the client was current.
func (h *Hub) Unregister(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.sessions[client.sessionID]
	if !ok || clients[client.participantID] != client {
		return false
	}

	delete(clients, client.participantID)
	if len(clients) == 0 {
		delete(h.sessions, client.sessionID)
	}

	h.logger.Debug("client unregistered",
		"session_id", client.sessionID, "participant_id", client.participantID, "remaining", len(clients))
	return true
}

// Send delivers a message to one participant of a session
func (h *Hub) Send(sessionID, participantID string, message any) bool {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "session_id", sessionID, "error", err)
		return false
	}

	h.mu.RLock()
	client := h.sessions[sessionID][participantID]
	h.mu.RUnlock()

	if client == nil {
		return false
	}
	return client.enqueue(data)
}

// Broadcast serializes message once and queues it for every client of the session
func (h *Hub) Broadcast(sessionID string, message any) {
	h.BroadcastExcept(sessionID, "", message)
}

// BroadcastExcept is Broadcast skipping one participant
func (h *Hub) BroadcastExcept(sessionID, exceptParticipantID string, message any) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", "session_id", sessionID, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for participantID, client := range h.sessions[sessionID] {
		if participantID == exceptParticipantID {
			continue
		}
		client.enqueue(data)
	}
}

// CloseSession evicts every connection of a session
func (h *Hub) CloseSession(sessionID string, code int, reason string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.sessions[sessionID] {
		client.closeWith(code, reason)
	}
	return len(h.sessions[sessionID])
}

// Participants lists the participants with a live connection, sorted
func (h *Hub) Participants(sessionID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.sessions[sessionID]))
	for id := range h.sessions[sessionID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// readPump feeds inbound frames to onMessage until the connection fails,
// then calls onClose
func (c *Client) readPump(onMessage func([]byte), onClose func()) {
	defer func() {
		c.closeWith(websocket.CloseNormalClosure, "")
		c.conn.Close()
		onClose()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read failed",
					"session_id", c.sessionID, "participant_id", c.participantID, "error", err)
			}
			return
		}
		onMessage(message)
	}
}

// writePump writes queued messages, one per frame, and keeps the
// connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(c.closeCode, c.closeReason),
				time.Now().Add(writeWait))
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reject closes a connection that never joined
func reject(conn *websocket.Conn, code int) {
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, protocol.CloseReason(code)),
		time.Now().Add(writeWait))
	conn.Close()
}
