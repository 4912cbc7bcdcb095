package websocket

import (
	"encoding/json"
	"sync"

	"github.com/linked-app/linked/backend/internal/chat"
	"github.com/linked-app/linked/backend/internal/models"
	"go.uber.org/zap"
)

// SessionStore looks up the conversation behind a session.
type SessionStore interface {
	Get(id string) (models.Session, *chat.Conversation, error)
	Heartbeat(id string) error
}

// Hub maintains the set of active clients and fans delivered messages out to
// the clients watching a session.
// It handles client registration, unregistration, and message broadcasting per session.
type Hub struct {
	// sessions maps session ID to a set of clients watching it
	sessions map[string]map[*Client]bool

	// register requests from clients
	register chan *Client

	// unregister requests from clients
	unregister chan *Client

	// broadcast sends a frame to all clients of a session
	broadcast chan *BroadcastMessage

	// drop disconnects every client of a session
	drop chan string

	done chan struct{}
	stop sync.Once

	// mutex for thread-safe session operations
	mu sync.RWMutex

	store SessionStore
	log   *zap.Logger
}

// BroadcastMessage contains a frame to broadcast to a specific session
type BroadcastMessage struct {
	SessionID string
	Message   []byte
}

// WebSocketMessage is the frame format in both directions
type WebSocketMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Frame types
const (
	TypeMessage   = "message"
	TypeHeartbeat = "heartbeat"
	TypeError     = "error"
)

// SendPayload is the payload of an inbound message frame
type SendPayload struct {
	Body string `json:"body"`
}

// NewHub creates a new Hub instance
func NewHub(store SessionStore, log *zap.Logger) *Hub {
	return &Hub{
		sessions:   make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage),
		drop:       make(chan string),
		done:       make(chan struct{}),
		store:      store,
		log:        log,
	}
}

// Run starts the hub's main event loop
// This should be called in a goroutine: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.broadcastToSession(msg)

		case sessionID := <-h.drop:
			h.dropSession(sessionID)

		case <-h.done:
			h.shutdown()
			return
		}
	}
}

// Stop ends the event loop and disconnects every client.
func (h *Hub) Stop() {
	h.stop.Do(func() { close(h.done) })
}

// Publish implements services.Notifier. It forwards a delivered message to
// every client of the session.
func (h *Hub) Publish(sessionID string, msg models.Message) {
	frame, err := encodeFrame(TypeMessage, msg)
	if err != nil {
		h.log.Error("[WebSocket] Failed to encode message", zap.String("id", msg.ID), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- &BroadcastMessage{SessionID: sessionID, Message: frame}:
	case <-h.done:
	}
}

// Closed implements services.Notifier. Clients of a closed session are
// disconnected.
func (h *Hub) Closed(sessionID string) {
	select {
	case h.drop <- sessionID:
	case <-h.done:
	}
}

// registerClient adds a client to a session
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Create the client set if it doesn't exist
	if h.sessions[client.SessionID] == nil {
		h.sessions[client.SessionID] = make(map[*Client]bool)
	}

	h.sessions[client.SessionID][client] = true
	h.log.Info("[WebSocket] Client joined session",
		zap.String("session", client.SessionID),
		zap.Int("total", len(h.sessions[client.SessionID])))
}

// unregisterClient removes a client from a session
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *Hub) removeLocked(client *Client) {
	clients, ok := h.sessions[client.SessionID]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}
	delete(clients, client)
	close(client.send)

	h.log.Info("[WebSocket] Client left session",
		zap.String("session", client.SessionID),
		zap.Int("remaining", len(clients)))

	// Clean up empty sessions
	if len(clients) == 0 {
		delete(h.sessions, client.SessionID)
	}
}

// broadcastToSession sends a frame to all clients of a session
func (h *Hub) broadcastToSession(msg *BroadcastMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.sessions[msg.SessionID]
	sent := 0
	for client := range clients {
		select {
		case client.send <- msg.Message:
			sent++
		default:
			// Client's buffer is full, remove them
			h.log.Warn("[WebSocket] Client too slow, disconnecting", zap.String("session", msg.SessionID))
			h.removeLocked(client)
		}
	}
	h.log.Debug("[WebSocket] Broadcast complete",
		zap.String("session", msg.SessionID),
		zap.Int("sent", sent))
}

func (h *Hub) dropSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.sessions[sessionID] {
		h.removeLocked(client)
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.sessions {
		for client := range clients {
			h.removeLocked(client)
		}
	}
}

// GetSessionClientCount returns the number of connected clients of a session
func (h *Hub) GetSessionClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

func encodeFrame(frameType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WebSocketMessage{Type: frameType, Payload: raw})
}
