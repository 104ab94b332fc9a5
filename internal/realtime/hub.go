package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60
	sendBuffer   = 64
)

// Hub maps user id -> connected wizard clients and pushes state events to them.
// A user may have the wizard open in several tabs.
type Hub struct {
	users  map[uuid.UUID]map[string]*Client
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		users:  make(map[uuid.UUID]map[string]*Client),
		logger: logger,
	}
}

// Register adds a client to its user's set.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.users[c.UserID] == nil {
		h.users[c.UserID] = make(map[string]*Client)
	}
	h.users[c.UserID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("wizard client connected", zap.String("client_id", c.ID), zap.String("user_id", c.UserID.String()))
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.users[c.UserID]; ok {
		if _, ok := m[c.ID]; ok {
			delete(m, c.ID)
			close(c.send)
		}
		if len(m) == 0 {
			delete(h.users, c.UserID)
		}
	}
	h.mu.Unlock()
	h.logger.Debug("wizard client disconnected", zap.String("client_id", c.ID), zap.String("user_id", c.UserID.String()))
}

// SendToUser delivers an event to every client of the user. Slow clients drop messages.
// seq orders state messages: a client skips any whose seq is not above the last one it
// wrote. Use 0 for messages that are not draft states.
func (h *Hub) SendToUser(userID uuid.UUID, event string, seq uint64, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("marshal ws payload", zap.String("event", event), zap.Error(err))
		return
	}
	msg := WSMessage{Event: event, Seq: seq, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.users[userID] {
		select {
		case c.send <- msg:
		default:
			h.logger.Debug("ws buffer full, dropping", zap.String("client_id", c.ID), zap.String("event", event))
		}
	}
}

// ConnectionCount returns the number of open clients for a user.
func (h *Hub) ConnectionCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}
