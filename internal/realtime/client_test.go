package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/linked-app/linked/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const key = "0xa:0xb"

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// fakeServer runs script against every accepted connection.
func fakeServer(t *testing.T, script func(t *testing.T, ws *websocket.Conn)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/realtime/v1/websocket", r.URL.Path)
		assert.Equal(t, "anon", r.URL.Query().Get("apikey"))
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		script(t, ws)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, "anon", time.Second, zap.NewNop())
	require.NoError(t, err)
	return client
}

func readJoin(t *testing.T, ws *websocket.Conn) envelope {
	t.Helper()
	var join envelope
	require.NoError(t, ws.ReadJSON(&join))
	assert.Equal(t, eventJoin, join.Event)
	assert.Equal(t, "realtime:conversation:"+key, join.Topic)
	assert.Contains(t, string(join.Payload), `"filter":"conversation_id=eq.`+key+`"`)
	return join
}

func reply(ws *websocket.Conn, topic, ref, status string) error {
	return ws.WriteJSON(map[string]interface{}{
		"topic":   topic,
		"event":   eventReply,
		"ref":     ref,
		"payload": map[string]interface{}{"status": status, "response": map[string]interface{}{}},
	})
}

func TestListen_DeliversChangesAndBroadcasts(t *testing.T) {
	client := fakeServer(t, func(t *testing.T, ws *websocket.Conn) {
		join := readJoin(t, ws)
		require.NoError(t, reply(ws, join.Topic, *join.Ref, "ok"))

		record := models.Message{ID: "m1", ConversationKey: key, Sender: "0xa", Receiver: "0xb", Body: "hello"}
		raw, _ := json.Marshal(record)
		require.NoError(t, ws.WriteJSON(map[string]interface{}{
			"topic": join.Topic,
			"event": eventChanges,
			"payload": map[string]interface{}{
				"data": map[string]interface{}{"type": "INSERT", "record": json.RawMessage(raw)},
			},
		}))
		// Rows of another conversation are ignored
		require.NoError(t, ws.WriteJSON(map[string]interface{}{
			"topic": join.Topic,
			"event": eventBroadcast,
			"payload": map[string]interface{}{
				"event":   "message",
				"payload": models.Message{ID: "x", ConversationKey: "0xa:0xc"},
			},
		}))
		require.NoError(t, ws.WriteJSON(map[string]interface{}{
			"topic": join.Topic,
			"event": eventBroadcast,
			"payload": map[string]interface{}{
				"event":   "message",
				"payload": models.Message{ID: "m2", ConversationKey: key, Body: "again"},
			},
		}))

		// Keep the connection open until the client leaves
		for {
			var env envelope
			if err := ws.ReadJSON(&env); err != nil || env.Event == eventLeave {
				return
			}
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan models.Message, 4)
	joined := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Listen(ctx, key, func(m models.Message) { got <- m }, func() { close(joined) })
	}()

	select {
	case <-joined:
	case <-time.After(2 * time.Second):
		t.Fatal("join was not acknowledged")
	}

	var ids []string
	for len(ids) < 2 {
		select {
		case m := <-got:
			ids = append(ids, m.ID)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out, got %v", ids)
		}
	}
	assert.Equal(t, []string{"m1", "m2"}, ids)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return after cancel")
	}
}

func TestListen_JoinRejected(t *testing.T) {
	client := fakeServer(t, func(t *testing.T, ws *websocket.Conn) {
		join := readJoin(t, ws)
		_ = reply(ws, join.Topic, *join.Ref, "error")
		var env envelope
		_ = ws.ReadJSON(&env)
	})

	err := client.Listen(context.Background(), key, func(models.Message) {}, nil)
	require.ErrorIs(t, err, ErrJoinRejected)
}

func TestListen_ChangesSubscriptionFailed(t *testing.T) {
	client := fakeServer(t, func(t *testing.T, ws *websocket.Conn) {
		join := readJoin(t, ws)
		require.NoError(t, reply(ws, join.Topic, *join.Ref, "ok"))
		require.NoError(t, ws.WriteJSON(map[string]interface{}{
			"topic": join.Topic,
			"event": eventSystem,
			"payload": map[string]interface{}{
				"status":    "ok",
				"message":   "Subscribed to PostgreSQL",
				"extension": "postgres_changes",
			},
		}))
		require.NoError(t, ws.WriteJSON(map[string]interface{}{
			"topic": join.Topic,
			"event": eventSystem,
			"payload": map[string]interface{}{
				"status":    "error",
				"message":   "Error 401: Unauthorized",
				"extension": "postgres_changes",
			},
		}))
		var env envelope
		_ = ws.ReadJSON(&env)
	})

	joined := false
	err := client.Listen(context.Background(), key, func(models.Message) {}, func() { joined = true })
	require.ErrorIs(t, err, ErrChangesUnavailable)
	assert.True(t, joined)
}

func TestListen_ServerDrop(t *testing.T) {
	client := fakeServer(t, func(t *testing.T, ws *websocket.Conn) {
		join := readJoin(t, ws)
		_ = reply(ws, join.Topic, *join.Ref, "ok")
	})

	err := client.Listen(context.Background(), key, func(models.Message) {}, nil)
	require.Error(t, err)
}

func TestListen_DialFailure(t *testing.T) {
	client, err := NewClient("http://127.0.0.1:1", "anon", time.Second, zap.NewNop())
	require.NoError(t, err)

	err = client.Listen(context.Background(), key, func(models.Message) {}, nil)
	require.Error(t, err)
}

func TestNewClient_Endpoint(t *testing.T) {
	client, err := NewClient("https://project.supabase.co/", "anon", time.Second, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "wss://project.supabase.co/realtime/v1/websocket?apikey=anon&vsn=1.0.0", client.endpoint)

	_, err = NewClient("ftp://project", "anon", time.Second, zap.NewNop())
	require.Error(t, err)
}
