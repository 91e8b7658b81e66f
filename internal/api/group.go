package api

import (
	"github.com/gin-gonic/gin"
	"github.com/meridianbank/backoffice/internal/repository"
	"go.uber.org/zap"
)

// GroupHandler serves the organizational tree.
type GroupHandler struct {
	groups repository.GroupRepository
	logger *zap.Logger
}

func NewGroupHandler(groups repository.GroupRepository, logger *zap.Logger) *GroupHandler {
	return &GroupHandler{groups: groups, logger: logger}
}

type groupRequest struct {
	Name     string `json:"name" binding:"required"`
	ParentID *int64 `json:"parent_id"`
}

// Create handles POST /v1/groups. Nil parent creates a root.
func (h *GroupHandler) Create(c *gin.Context) {
	var req groupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name is required")
		return
	}
	group, err := h.groups.Create(c.Request.Context(), req.Name, req.ParentID)
	if err != nil {
		fail(c, h.logger, err, "group creation")
		return
	}
	created(c, "group created", group)
}

// List handles GET /v1/groups: the root level by default (absent or
// zero parent_id), one level of children with ?parent_id=N.
func (h *GroupHandler) List(c *gin.Context) {
	var parentID *int64
	if raw := c.Query("parent_id"); raw != "" && raw != "0" {
		id, okID := parsePositive(raw)
		if !okID {
			badRequest(c, "invalid parent_id")
			return
		}
		parentID = &id
	}
	groups, err := h.groups.Children(c.Request.Context(), parentID)
	if err != nil {
		fail(c, h.logger, err, "group listing")
		return
	}
	ok(c, "groups", groups)
}

// Get handles GET /v1/groups/:id.
func (h *GroupHandler) Get(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	group, err := h.groups.GetByID(c.Request.Context(), id)
	if err != nil {
		fail(c, h.logger, err, "group")
		return
	}
	ok(c, "group", group)
}

// Descendants handles GET /v1/groups/:id/descendants: the node plus its
// whole subtree in one response.
func (h *GroupHandler) Descendants(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	groups, err := h.groups.Descendants(c.Request.Context(), id)
	if err != nil {
		fail(c, h.logger, err, "group subtree")
		return
	}
	ok(c, "group subtree", groups)
}

// Update handles PUT /v1/groups/:id. Renames and/or reparents; moving a
// group under its own descendant is refused.
func (h *GroupHandler) Update(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	var req groupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name is required")
		return
	}
	if err := h.groups.Update(c.Request.Context(), id, req.Name, req.ParentID); err != nil {
		fail(c, h.logger, err, "group update")
		return
	}
	group, err := h.groups.GetByID(c.Request.Context(), id)
	if err != nil {
		fail(c, h.logger, err, "group update")
		return
	}
	ok(c, "group updated", group)
}

// Delete handles DELETE /v1/groups/:id. Only empty leaves go; a group
// with children, members or documents is refused.
func (h *GroupHandler) Delete(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	if err := h.groups.Delete(c.Request.Context(), id); err != nil {
		fail(c, h.logger, err, "group deletion")
		return
	}
	ok(c, "group deleted", nil)
}
