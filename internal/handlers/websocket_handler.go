package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"stealth-backend/internal/services"
	"stealth-backend/internal/types"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 54 * time.Second
)

// WebSocketHandler streams ledger events to websocket clients
type WebSocketHandler struct {
	hub      *services.EventHub
	jwt      *JWTManager
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *services.EventHub, jwt *JWTManager) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		jwt: jwt,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// SubscriptionMessage is a client control frame.
type SubscriptionMessage struct {
	Action  string            `json:"action"` // "subscribe", "unsubscribe" or "ping"
	Types   []types.EventType `json:"types,omitempty"`
	Address string            `json:"address,omitempty"`
}

// HandleWebSocket GET /api/ws. A token is optional; anonymous clients see the
// public event stream too.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	address := h.extractUserFromToken(c.Request)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("❌ WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	client := h.hub.RegisterClient(address)
	defer h.hub.UnregisterClient(client.ClientID)

	log := logrus.WithFields(logrus.Fields{"client_id": client.ClientID, "user": address})
	log.Info("📡 WebSocket client connected")

	// control replies go through the write loop so only one goroutine writes
	replies := make(chan interface{}, 8)
	readDone := make(chan struct{})
	go h.readLoop(conn, client, replies, readDone, log)

	pingTicker := time.NewTicker(wsPingInterval)
	defer pingTicker.Stop()

	if err := writeJSON(conn, gin.H{"type": "connected", "client_id": client.ClientID, "timestamp": time.Now().Unix()}); err != nil {
		return
	}

	for {
		select {
		case frame, ok := <-client.Send:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.WithError(err).Debug("WebSocket write failed")
				return
			}
		case reply := <-replies:
			if err := writeJSON(conn, reply); err != nil {
				log.WithError(err).Debug("WebSocket write failed")
				return
			}
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readDone:
			log.Info("🔌 WebSocket client disconnected")
			return
		}
	}
}

func writeJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(v)
}

func (h *WebSocketHandler) readLoop(conn *websocket.Conn, client *services.ClientSubscription, replies chan<- interface{}, done chan<- struct{}, log logrus.FieldLogger) {
	defer close(done)

	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Debug("WebSocket read ended")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if messageType != websocket.TextMessage {
			continue
		}

		var msg SubscriptionMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			queueReply(replies, gin.H{"type": "error", "message": "invalid JSON"})
			continue
		}

		switch msg.Action {
		case "ping":
			queueReply(replies, gin.H{"type": "pong", "timestamp": time.Now().Unix()})
		case "subscribe":
			filter := services.SubscriptionFilter{Types: msg.Types, Address: msg.Address}
			if err := h.hub.Subscribe(client.ClientID, filter); err != nil {
				return
			}
			log.WithField("types", msg.Types).Debug("✅ WebSocket client subscribed")
			queueReply(replies, gin.H{"type": "subscription_confirmed", "filter": filter})
		case "unsubscribe":
			if err := h.hub.Subscribe(client.ClientID, services.SubscriptionFilter{}); err != nil {
				return
			}
			queueReply(replies, gin.H{"type": "unsubscription_confirmed"})
		default:
			queueReply(replies, gin.H{"type": "error", "message": "unknown action: " + msg.Action})
		}
	}
}

func queueReply(replies chan<- interface{}, v interface{}) {
	select {
	case replies <- v:
	default:
	}
}

// extractUserFromToken returns the token's address, or "" for anonymous or
// invalid tokens.
func (h *WebSocketHandler) extractUserFromToken(r *http.Request) string {
	if h.jwt == nil {
		return ""
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	if token == "" {
		return ""
	}

	claims, err := h.jwt.Validate(token)
	if err != nil {
		logrus.WithError(err).Debug("WebSocket token rejected, continuing anonymously")
		return ""
	}
	return claims.UserAddress
}
