// server/internal/api/handlers/websocket_handler.go
package handlers

import (
	"log"
	"net/http"
	"time"

	"ku-fleet-api-server/internal/auth"
	"ku-fleet-api-server/internal/socket"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Maximum time to wait for a client ping before dropping it.
const pongWait = 60 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ClientGauge is satisfied by metrics.Collector.
type ClientGauge interface {
	SetWSClients(n int)
}

type WebSocketHandler struct {
	Hub    *socket.Hub
	Secret string
	Gauge  ClientGauge
}

// ServeWs streams alert and position events to dashboards. The token is
// passed as ?token= since browsers cannot set headers on upgrades.
func (h *WebSocketHandler) ServeWs(c *gin.Context) {
	subject := "anonymous"
	if h.Secret != "" {
		tokenString := c.Query("token")
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token is required"})
			return
		}
		claims, err := auth.ParseJWT([]byte(h.Secret), tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		subject = claims.Subject
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}

	// One subject may hold several dashboards open.
	clientID := subject + ":" + uuid.NewString()
	h.Hub.Register(clientID, conn)
	h.gauge()
	defer func() {
		h.Hub.Unregister(clientID)
		h.gauge()
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Unexpected close error from %s: %v", clientID, err)
			}
			return
		}
	}
}

func (h *WebSocketHandler) gauge() {
	if h.Gauge != nil {
		h.Gauge.SetWSClients(h.Hub.Count())
	}
}
