package socket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// connPair returns the server side of a fresh WebSocket connection and the
// dialled client side.
func connPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	serverSide := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverSide <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case conn := <-serverSide:
		return conn, client
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the connection")
		return nil, nil
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(msg)
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub()
	serverConn, client := connPair(t)
	hub.Register("dashboard-1", serverConn)

	assert.Equal(t, 1, hub.Count())
	assert.Equal(t, 1, hub.Broadcast([]byte(`{"kind":"alert"}`)))
	assert.JSONEq(t, `{"kind":"alert"}`, readMessage(t, client))

	require.NoError(t, hub.Send("dashboard-1", []byte(`{"kind":"position"}`)))
	assert.JSONEq(t, `{"kind":"position"}`, readMessage(t, client))

	hub.Unregister("dashboard-1")
	assert.Equal(t, 0, hub.Count())
	assert.NoError(t, hub.Send("dashboard-1", []byte("gone")))
}

func TestHubDropsClientThatStopsReading(t *testing.T) {
	hub := NewHub()
	healthyConn, healthy := connPair(t)
	hub.Register("healthy", healthyConn)

	// A client whose queue is never drained.
	stuckConn, _ := connPair(t)
	hub.mu.Lock()
	hub.clients["stuck"] = &client{conn: stuckConn, send: make(chan []byte)}
	hub.mu.Unlock()

	done := make(chan int, 1)
	go func() { done <- hub.Broadcast([]byte(`{"kind":"alert"}`)) }()

	select {
	case sent := <-done:
		assert.Equal(t, 1, sent)
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}
	assert.Equal(t, 1, hub.Count())
	assert.JSONEq(t, `{"kind":"alert"}`, readMessage(t, healthy))
}

func TestHubRegisterReplacesClient(t *testing.T) {
	hub := NewHub()
	firstConn, first := connPair(t)
	secondConn, second := connPair(t)

	hub.Register("dashboard", firstConn)
	hub.Register("dashboard", secondConn)
	assert.Equal(t, 1, hub.Count())

	hub.Broadcast([]byte("hello"))
	assert.Equal(t, "hello", readMessage(t, second))

	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.ReadMessage()
	assert.Error(t, err, "the replaced connection is closed")
}
