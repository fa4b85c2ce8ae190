// server/internal/socket/hub.go
package socket

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 5 * time.Second
	// sendBuffer is how many messages may queue for one client before it is
	// dropped as too slow.
	sendBuffer = 256
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks the dashboard WebSocket clients that receive live fleet events.
// Each client has its own queue and writer goroutine, so a slow dashboard
// never blocks the publisher.
type Hub struct {
	// clients maps a connection id to its socket.
	clients map[string]*client
	mu      sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*client),
	}
}

func (h *Hub) Register(clientID string, conn *websocket.Conn) {
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if old, ok := h.clients[clientID]; ok {
		h.dropLocked(clientID, old)
	}
	h.clients[clientID] = c
	h.mu.Unlock()

	go h.writePump(clientID, c)
	log.Printf("WebSocket client registered: %s", clientID)
}

func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		h.dropLocked(clientID, c)
		log.Printf("WebSocket client unregistered: %s", clientID)
	}
}

// dropLocked removes c and closes its queue and socket. h.mu must be held.
func (h *Hub) dropLocked(clientID string, c *client) {
	delete(h.clients, clientID)
	close(c.send)
	_ = c.conn.Close()
}

// remove drops c unless it was already replaced or unregistered.
func (h *Hub) remove(clientID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.clients[clientID]; ok && cur == c {
		h.dropLocked(clientID, c)
	}
}

func (h *Hub) writePump(clientID string, c *client) {
	for message := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Printf("WebSocket write to %s failed, dropping client: %v", clientID, err)
			h.remove(clientID, c)
			return
		}
	}
}

// Send queues message for one client. An offline client is not an error.
func (h *Hub) Send(clientID string, message []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[clientID]
	if !ok {
		log.Printf("WebSocket client not found, could not send message: %s", clientID)
		return nil
	}
	select {
	case c.send <- message:
		return nil
	default:
		h.dropLocked(clientID, c)
		return fmt.Errorf("websocket client %s is not keeping up", clientID)
	}
}

// Broadcast queues message for every client and drops the ones whose queue
// is full. It returns how many clients accepted it.
func (h *Hub) Broadcast(message []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	sent := 0
	for id, c := range h.clients {
		select {
		case c.send <- message:
			sent++
		default:
			log.Printf("WebSocket client %s is not keeping up, dropping it", id)
			h.dropLocked(id, c)
		}
	}
	return sent
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
