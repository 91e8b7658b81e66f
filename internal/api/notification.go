package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/meridianbank/backoffice/internal/middleware"
	"github.com/meridianbank/backoffice/internal/notify"
	"github.com/meridianbank/backoffice/internal/repository"
	"go.uber.org/zap"
)

// NotificationHandler serves admin broadcasts and the per-user inbox.
// A broadcast fans out to every active user in the database first, then
// gets pushed over any open websockets as a best-effort extra.
type NotificationHandler struct {
	notifications repository.NotificationRepository
	hub           *notify.Hub
	upgrader      websocket.Upgrader
	logger        *zap.Logger
}

func NewNotificationHandler(notifications repository.NotificationRepository, hub *notify.Hub, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		hub:           hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Auth happens in the gate middleware, not at the origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

type broadcastRequest struct {
	Title string `json:"title" binding:"required"`
	Body  string `json:"body" binding:"required"`
}

// Broadcast handles POST /v1/notifications. The database fan-out and
// the socket push are separate: the first is the record, the second a
// courtesy.
func (h *NotificationHandler) Broadcast(c *gin.Context) {
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "title and body are required")
		return
	}

	notification, recipients, err := h.notifications.Broadcast(c.Request.Context(), req.Title, req.Body)
	if err != nil {
		fail(c, h.logger, err, "broadcast")
		return
	}
	h.hub.Broadcast(notification)

	created(c, "notification broadcast", gin.H{
		"notification": notification,
		"recipients":   recipients,
	})
}

// List handles GET /v1/notifications: the caller's inbox, newest first,
// each entry carrying its read flag.
func (h *NotificationHandler) List(c *gin.Context) {
	user := middleware.Identity(c)
	pageNum, limit := pageParams(c, listLimit)

	items, total, err := h.notifications.ListForUser(c.Request.Context(), user.ID, pageNum, limit)
	if err != nil {
		fail(c, h.logger, err, "notification listing")
		return
	}
	ok(c, "notifications", pageData(items, NewPageMeta(pageNum, limit, total)))
}

// MarkRead handles PUT /v1/notifications/:id/read. Idempotent; marking
// someone else's entry is a 404 because the caller never had it.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	user := middleware.Identity(c)
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	if err := h.notifications.MarkRead(c.Request.Context(), user.ID, id); err != nil {
		fail(c, h.logger, err, "notification")
		return
	}
	ok(c, "notification read", nil)
}

// UnreadCount handles GET /v1/notifications/unread-count for the badge.
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	user := middleware.Identity(c)
	count, err := h.notifications.UnreadCount(c.Request.Context(), user.ID)
	if err != nil {
		fail(c, h.logger, err, "notification count")
		return
	}
	ok(c, "unread count", gin.H{"count": count})
}

// Stream handles GET /v1/notifications/stream, upgrading to a websocket
// that receives future broadcasts live. The read loop exists only to
// notice the close.
func (h *NotificationHandler) Stream(c *gin.Context) {
	user := middleware.Identity(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	h.hub.Register(user.ID, conn)
	defer func() {
		h.hub.Unregister(user.ID, conn)
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
