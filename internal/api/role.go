package api

import (
	"github.com/gin-gonic/gin"
	"github.com/meridianbank/backoffice/internal/repository"
	"go.uber.org/zap"
)

// RoleHandler serves the role and permission graph.
type RoleHandler struct {
	roles  repository.RoleRepository
	perms  repository.PermissionRepository
	logger *zap.Logger
}

func NewRoleHandler(roles repository.RoleRepository, perms repository.PermissionRepository, logger *zap.Logger) *RoleHandler {
	return &RoleHandler{roles: roles, perms: perms, logger: logger}
}

// ListRoles handles GET /v1/roles.
func (h *RoleHandler) ListRoles(c *gin.Context) {
	roles, err := h.roles.List(c.Request.Context())
	if err != nil {
		fail(c, h.logger, err, "role listing")
		return
	}
	ok(c, "roles", roles)
}

// ListPermissions handles GET /v1/permissions.
func (h *RoleHandler) ListPermissions(c *gin.Context) {
	perms, err := h.perms.List(c.Request.Context())
	if err != nil {
		fail(c, h.logger, err, "permission listing")
		return
	}
	ok(c, "permissions", perms)
}

type createPermissionRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// CreatePermission handles POST /v1/permissions.
func (h *RoleHandler) CreatePermission(c *gin.Context) {
	var req createPermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name is required")
		return
	}
	perm, err := h.perms.Create(c.Request.Context(), req.Name, req.Description)
	if err != nil {
		fail(c, h.logger, err, "permission creation")
		return
	}
	created(c, "permission created", perm)
}

// RolePermissions handles GET /v1/roles/:id/permissions.
func (h *RoleHandler) RolePermissions(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	perms, err := h.perms.ListForRole(c.Request.Context(), id)
	if err != nil {
		fail(c, h.logger, err, "role permissions")
		return
	}
	ok(c, "role permissions", perms)
}

type assignPermissionRequest struct {
	PermissionID int64 `json:"permission_id" binding:"required"`
}

// AssignPermission handles POST /v1/roles/:id/permissions. The change
// is live on the next request; there is no permission cache to flush.
func (h *RoleHandler) AssignPermission(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	var req assignPermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "permission_id is required")
		return
	}
	if err := h.perms.Assign(c.Request.Context(), id, req.PermissionID); err != nil {
		fail(c, h.logger, err, "permission assignment")
		return
	}
	created(c, "permission assigned", nil)
}

// UnassignPermission handles DELETE /v1/roles/:id/permissions/:permID.
func (h *RoleHandler) UnassignPermission(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	permID, okID := pathID(c, "permID")
	if !okID {
		return
	}
	if err := h.perms.Unassign(c.Request.Context(), id, permID); err != nil {
		fail(c, h.logger, err, "permission removal")
		return
	}
	ok(c, "permission removed", nil)
}
