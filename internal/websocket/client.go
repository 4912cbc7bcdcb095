package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/linked-app/linked/backend/internal/apperr"
	"github.com/linked-app/linked/backend/internal/models"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 16 * 1024

	// Time allowed for one send to reach the store
	sendTimeout = 15 * time.Second
)

// Client represents a single WebSocket connection watching one session
type Client struct {
	hub *Hub

	// WebSocket connection
	conn *websocket.Conn

	// Buffered channel of outbound frames
	send chan []byte

	// Session this client belongs to
	SessionID string

	log *zap.Logger
}

// NewClient creates a new Client instance
func NewClient(hub *Hub, conn *websocket.Conn, sessionID string) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 256),
		SessionID: sessionID,
		log:       hub.log.With(zap.String("session", sessionID)),
	}
}

// ReadPump reads frames from the WebSocket connection and acts on them.
// Message frames are sent through the session's conversation; the stored
// message comes back to every client through delivery.
// This runs in its own goroutine per client
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		// A connected screen is an active one
		_ = c.hub.store.Heartbeat(c.SessionID)
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Info("[WebSocket] Read error", zap.Error(err))
			}
			break
		}

		var frame WebSocketMessage
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.reply(TypeError, models.SendMessageError{Error: "malformed frame"})
			continue
		}

		switch frame.Type {
		case TypeMessage:
			c.handleSend(frame.Payload)
		case TypeHeartbeat:
			_ = c.hub.store.Heartbeat(c.SessionID)
		default:
			c.log.Debug("[WebSocket] Ignoring frame", zap.String("type", frame.Type))
		}
	}
}

func (c *Client) handleSend(payload json.RawMessage) {
	var req SendPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		c.reply(TypeError, models.SendMessageError{Error: "malformed message payload"})
		return
	}

	_, conv, err := c.hub.store.Get(c.SessionID)
	if err != nil {
		c.reply(TypeError, models.SendMessageError{Error: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if _, err := conv.Send(ctx, req.Body); err != nil {
		c.log.Info("[WebSocket] Send failed", zap.Error(err))
		c.reply(TypeError, models.SendMessageError{
			Error:     err.Error(),
			Retryable: apperr.IsPersistence(err) || errors.Is(err, apperr.ErrSendInProgress),
			Draft:     conv.Draft(),
		})
		return
	}
	_ = c.hub.store.Heartbeat(c.SessionID)
}

// reply queues a frame for this client only.
func (c *Client) reply(frameType string, payload interface{}) {
	frame, err := encodeFrame(frameType, payload)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	// send is closed once the hub dropped the client
	if !c.hub.sessions[c.SessionID][c] {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

// WritePump pumps frames from the hub to the WebSocket connection
// This runs in its own goroutine per client
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// Send each frame separately, the UI parses one JSON document per frame
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Send any queued frames
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
