// Package realtime listens to Supabase Realtime for new messages of one
// conversation. It speaks the Phoenix channel protocol (vsn 1.0.0) over a
// gorilla websocket and emits both database change events and broadcasts.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/linked-app/linked/backend/internal/models"
	"github.com/linked-app/linked/backend/internal/supabase"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a frame to the server
	writeWait = 10 * time.Second

	// Time allowed for the websocket handshake
	handshakeTimeout = 10 * time.Second

	phoenixTopic = "phoenix"
)

// Phoenix events
const (
	eventJoin      = "phx_join"
	eventLeave     = "phx_leave"
	eventReply     = "phx_reply"
	eventError     = "phx_error"
	eventClose     = "phx_close"
	eventHeartbeat = "heartbeat"
	eventChanges   = "postgres_changes"
	eventBroadcast = "broadcast"
	eventSystem    = "system"
)

var (
	// ErrJoinRejected is returned when the server refuses the channel join.
	ErrJoinRejected = errors.New("realtime join rejected")

	// ErrChangesUnavailable is returned when the server could not attach the
	// postgres_changes listener to a joined channel.
	ErrChangesUnavailable = errors.New("realtime postgres_changes unavailable")
)

// Client opens one websocket per listened conversation.
type Client struct {
	endpoint  string
	apiKey    string
	heartbeat time.Duration
	dialer    *websocket.Dialer
	log       *zap.Logger
}

// NewClient derives the websocket endpoint from the project URL.
func NewClient(baseURL, apiKey string, heartbeat time.Duration, log *zap.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse supabase url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return nil, fmt.Errorf("unsupported supabase url scheme %q", u.Scheme)
	}
	u.Path += "/realtime/v1/websocket"
	u.RawQuery = url.Values{"apikey": {apiKey}, "vsn": {"1.0.0"}}.Encode()
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}

	return &Client{
		endpoint:  u.String(),
		apiKey:    apiKey,
		heartbeat: heartbeat,
		dialer:    &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		log:       log,
	}, nil
}

// envelope is a Phoenix protocol frame.
type envelope struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type changePayload struct {
	Data struct {
		Type      string          `json:"type"`
		EventType string          `json:"eventType"`
		Record    json.RawMessage `json:"record"`
		New       json.RawMessage `json:"new"`
	} `json:"data"`
}

type systemPayload struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Extension string `json:"extension"`
}

type broadcastPayload struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// conn serializes writes, gorilla allows one concurrent writer.
type conn struct {
	ws  *websocket.Conn
	mu  sync.Mutex
	ref uint64
}

func (c *conn) send(topic, event string, payload interface{}) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ref++
	ref := strconv.FormatUint(c.ref, 10)
	frame := map[string]interface{}{
		"topic":   topic,
		"event":   event,
		"payload": payload,
		"ref":     ref,
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return "", err
	}
	return ref, c.ws.WriteJSON(frame)
}

// Listen joins the conversation channel and calls deliver for every inserted
// or broadcast message until ctx is cancelled or the connection fails.
// joined is called once the server acknowledged the join.
// It returns nil on cancellation and an error on any transport failure.
func (c *Client) Listen(ctx context.Context, conversationKey string, deliver func(models.Message), joined func()) error {
	ws, resp, err := c.dialer.DialContext(ctx, c.endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("dial realtime: %w", err)
	}
	defer ws.Close()

	cn := &conn{ws: ws}
	topic := "realtime:" + supabase.ChannelName(conversationKey)
	joinRef, err := cn.send(topic, eventJoin, c.joinPayload(conversationKey))
	if err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	incoming := make(chan envelope)
	readErr := make(chan error, 1)
	go c.readLoop(ws, incoming, readErr, done)

	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_, _ = cn.send(topic, eventLeave, struct{}{})
			c.log.Debug("[Realtime] Left channel", zap.String("topic", topic))
			return nil

		case err := <-readErr:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("realtime read: %w", err)

		case <-ticker.C:
			if _, err := cn.send(phoenixTopic, eventHeartbeat, struct{}{}); err != nil {
				return fmt.Errorf("send heartbeat: %w", err)
			}

		case env := <-incoming:
			if env.Topic != topic {
				continue
			}
			if err := c.handle(env, joinRef, conversationKey, deliver, joined); err != nil {
				return err
			}
		}
	}
}

func (c *Client) readLoop(ws *websocket.Conn, incoming chan<- envelope, readErr chan<- error, done <-chan struct{}) {
	for {
		// A silent server misses two heartbeat replies before we give up
		_ = ws.SetReadDeadline(time.Now().Add(2*c.heartbeat + writeWait))

		var env envelope
		if err := ws.ReadJSON(&env); err != nil {
			readErr <- err
			return
		}
		select {
		case incoming <- env:
		case <-done:
			return
		}
	}
}

func (c *Client) handle(env envelope, joinRef, conversationKey string, deliver func(models.Message), joined func()) error {
	switch env.Event {
	case eventReply:
		if env.Ref == nil || *env.Ref != joinRef {
			return nil
		}
		var reply replyPayload
		if err := json.Unmarshal(env.Payload, &reply); err != nil {
			return fmt.Errorf("parse join reply: %w", err)
		}
		if reply.Status != "ok" {
			return fmt.Errorf("%w: %s %s", ErrJoinRejected, reply.Status, string(reply.Response))
		}
		c.log.Debug("[Realtime] Joined channel", zap.String("topic", env.Topic))
		if joined != nil {
			joined()
		}

	case eventChanges:
		var change changePayload
		if err := json.Unmarshal(env.Payload, &change); err != nil {
			c.log.Warn("[Realtime] Failed to parse change payload", zap.Error(err))
			return nil
		}
		kind := change.Data.Type
		if kind == "" {
			kind = change.Data.EventType
		}
		if kind != "INSERT" {
			return nil
		}
		record := change.Data.Record
		if len(record) == 0 {
			record = change.Data.New
		}
		c.emit(record, conversationKey, deliver)

	case eventBroadcast:
		var bc broadcastPayload
		if err := json.Unmarshal(env.Payload, &bc); err != nil {
			c.log.Warn("[Realtime] Failed to parse broadcast payload", zap.Error(err))
			return nil
		}
		if bc.Event == supabase.BroadcastEvent {
			c.emit(bc.Payload, conversationKey, deliver)
		}

	case eventError:
		return fmt.Errorf("realtime channel error: %s", string(env.Payload))

	case eventClose:
		return errors.New("realtime channel closed by server")

	case eventSystem:
		var sys systemPayload
		if err := json.Unmarshal(env.Payload, &sys); err != nil {
			c.log.Warn("[Realtime] Failed to parse system payload", zap.Error(err))
			return nil
		}
		// Broadcasts alone would miss rows inserted by other writers
		if sys.Status == "error" {
			return fmt.Errorf("%w: %s", ErrChangesUnavailable, sys.Message)
		}
		c.log.Debug("[Realtime] System event", zap.String("status", sys.Status), zap.String("message", sys.Message))
	}
	return nil
}

func (c *Client) emit(raw json.RawMessage, conversationKey string, deliver func(models.Message)) {
	var msg models.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.log.Warn("[Realtime] Failed to parse message", zap.Error(err))
		return
	}
	// The server-side filter should already guarantee this
	if msg.ID == "" || msg.ConversationKey != conversationKey {
		return
	}
	deliver(msg)
}

func (c *Client) joinPayload(conversationKey string) map[string]interface{} {
	return map[string]interface{}{
		"config": map[string]interface{}{
			"broadcast": map[string]interface{}{"ack": false, "self": false},
			"presence":  map[string]interface{}{"key": ""},
			"postgres_changes": []map[string]interface{}{
				{
					"event":  "INSERT",
					"schema": "public",
					"table":  "messages",
					"filter": "conversation_id=eq." + conversationKey,
				},
			},
			"private": false,
		},
		"access_token": c.apiKey,
	}
}
