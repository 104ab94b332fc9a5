package realtime

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EventSnapshot is sent once right after a client connects.
const EventSnapshot = "snapshot"

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Seq   uint64          `json:"seq,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client is one WebSocket connection of a wizard user.
type Client struct {
	ID      string
	UserID  uuid.UUID
	hub     *Hub
	conn    *websocket.Conn
	send    chan WSMessage
	lastSeq uint64 // newest state seq written, owned by writePump
	logger  *zap.Logger
}

// NewClient creates a client that is not yet attached to a connection.
func NewClient(hub *Hub, userID uuid.UUID, logger *zap.Logger) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		hub:    hub,
		send:   make(chan WSMessage, sendBuffer),
		logger: logger,
	}
}

// SnapshotFunc returns a user's current draft and the seq of its last event.
type SnapshotFunc func(userID uuid.UUID) (draft interface{}, seq uint64)

// ServeWs upgrades GET /ws?token=..., registers the client, sends the current
// snapshot and then relays every state event for the user. The client is registered
// before the snapshot is taken so no event is missed; events older than the snapshot
// are dropped by seq.
func ServeWs(hub *Hub, logger *zap.Logger, validate func(token string) (uuid.UUID, error), snapshot SnapshotFunc, allowedOrigins string) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "token required"})
			return
		}
		userID, err := validate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := NewClient(hub, userID, logger)
		client.conn = conn
		hub.Register(client)
		go client.writePump()
		if snapshot != nil {
			draft, seq := snapshot(userID)
			if data, err := json.Marshal(draft); err == nil {
				select {
				case client.send <- WSMessage{Event: EventSnapshot, Seq: seq, Data: data}:
				default:
					logger.Warn("ws buffer full, snapshot dropped", zap.String("client_id", client.ID))
				}
			}
		}
		client.readPump()
	}
}

func originChecker(allowed string) func(r *http.Request) bool {
	origins := make(map[string]bool)
	for _, o := range splitOrigins(allowed) {
		origins[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || len(origins) == 0 || origins["*"] || origins[origin]
	}
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// readPump only drains the connection; clients change state over HTTP.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// stale reports whether msg carries a state older than one already written, and
// records msg's seq otherwise.
func (c *Client) stale(msg WSMessage) bool {
	if msg.Seq == 0 {
		return false
	}
	if msg.Seq <= c.lastSeq {
		return true
	}
	c.lastSeq = msg.Seq
	return false
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if c.stale(msg) {
				continue
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
