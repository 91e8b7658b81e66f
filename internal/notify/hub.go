package notify

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/meridianbank/backoffice/internal/models"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

// client wraps one socket with its write lock. gorilla/websocket allows
// at most one concurrent writer per connection, and Broadcast may run
// from several request goroutines at once.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(n *models.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(n)
}

// Hub pushes freshly broadcast notifications to connected user
// websockets. Delivery is best effort: the database fan-out is the
// source of truth, the socket is a convenience. A slow or dead socket
// is dropped, never waited on.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*websocket.Conn]*client
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[int64]map[*websocket.Conn]*client),
		logger:  logger,
	}
}

// Register attaches a user's connection. A user may hold several
// (multiple tabs); each gets its own entry.
func (h *Hub) Register(userID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*websocket.Conn]*client)
	}
	h.clients[userID][conn] = &client{conn: conn}
}

// Unregister detaches a connection. Idempotent.
func (h *Hub) Unregister(userID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[userID]
	if set == nil {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(h.clients, userID)
	}
}

// ConnCount reports how many connections are currently registered.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// Broadcast pushes the notification to every connected user. Writes on
// the same connection are serialized through the client's lock, so two
// concurrent broadcasts never interleave frames. Failed writes drop the
// connection; the client rereads over HTTP on reconnect.
func (h *Hub) Broadcast(n *models.Notification) {
	h.mu.RLock()
	type target struct {
		userID int64
		cl     *client
	}
	targets := make([]target, 0)
	for userID, set := range h.clients {
		for _, cl := range set {
			targets = append(targets, target{userID: userID, cl: cl})
		}
	}
	h.mu.RUnlock()

	for _, t := range targets {
		if err := t.cl.send(n); err != nil {
			h.logger.Debug("drop notification socket",
				zap.Int64("user_id", t.userID), zap.Error(err))
			t.cl.conn.Close()
			h.Unregister(t.userID, t.cl.conn)
		}
	}
}
