package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meridianbank/backoffice/internal/middleware"
	"github.com/meridianbank/backoffice/internal/models"
	"github.com/meridianbank/backoffice/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// UserHandler serves admin-side identity provisioning. There is no
// self-signup; every account is created here by an admin.
type UserHandler struct {
	users  repository.UserRepository
	roles  repository.RoleRepository
	logger *zap.Logger
}

func NewUserHandler(users repository.UserRepository, roles repository.RoleRepository, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, roles: roles, logger: logger}
}

type createUserRequest struct {
	Name       string  `json:"name" binding:"required"`
	TelegramID string  `json:"telegram_id" binding:"required"`
	Password   string  `json:"password" binding:"required,min=8"`
	RoleID     int64   `json:"role_id" binding:"required"`
	GroupIDs   []int64 `json:"group_ids"`
}

// Create handles POST /v1/users. Directors and regular users may carry
// a group set; admins are unscoped and must not. Regular users hold one
// group at a time by convention, the storage allows more.
func (h *UserHandler) Create(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "name, telegram_id, password and role_id are required")
		return
	}

	role, err := h.roles.GetByID(c.Request.Context(), req.RoleID)
	if err != nil {
		fail(c, h.logger, err, "role")
		return
	}
	if len(req.GroupIDs) > 0 && role.Name == models.RoleAdmin {
		badRequest(c, "group_ids are not valid for admins")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		fail(c, h.logger, err, "user creation")
		return
	}

	user, err := h.users.Create(c.Request.Context(), &models.User{
		Name:         req.Name,
		TelegramID:   req.TelegramID,
		PasswordHash: string(hash),
		RoleID:       role.ID,
		Role:         role.Name,
		IsActive:     true,
	}, req.GroupIDs)
	if err != nil {
		fail(c, h.logger, err, "user creation")
		return
	}

	created(c, "user created", user)
}

// List handles GET /v1/users with role, group_id and is_active filters.
func (h *UserHandler) List(c *gin.Context) {
	pageNum, limit := pageParams(c, listLimit)

	filter := repository.UserFilter{
		Role: c.Query("role"),
		Page: pageNum, Limit: limit,
	}
	if groupID := c.Query("group_id"); groupID != "" {
		id, ok := parsePositive(groupID)
		if !ok {
			badRequest(c, "invalid group_id")
			return
		}
		filter.GroupID = id
	}
	if raw := c.Query("is_active"); raw != "" {
		active := raw == "true"
		filter.IsActive = &active
	}

	users, total, err := h.users.List(c.Request.Context(), filter)
	if err != nil {
		fail(c, h.logger, err, "user listing")
		return
	}
	ok(c, "users", pageData(users, NewPageMeta(pageNum, limit, total)))
}

// Get handles GET /v1/users/:id. Inactive identities are still visible
// here; only the auth gates treat them as missing.
func (h *UserHandler) Get(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	user, err := h.users.GetByID(c.Request.Context(), id)
	if err != nil {
		fail(c, h.logger, err, "user")
		return
	}
	if user.Role != models.RoleAdmin {
		groupIDs, err := h.users.GroupIDs(c.Request.Context(), user.ID)
		if err != nil {
			fail(c, h.logger, err, "user")
			return
		}
		user.GroupIDs = groupIDs
	}
	ok(c, "user", user)
}

// Update handles PUT /v1/users/:id, a partial profile edit by an admin.
func (h *UserHandler) Update(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}

	var req updateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid user update")
		return
	}
	if req.Name == nil && req.TelegramID == nil && req.Password == nil {
		badRequest(c, "nothing to update")
		return
	}

	var hash *string
	if req.Password != nil {
		raw, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			fail(c, h.logger, err, "user update")
			return
		}
		s := string(raw)
		hash = &s
	}

	if err := h.users.UpdateProfile(c.Request.Context(), id, req.Name, req.TelegramID, hash); err != nil {
		fail(c, h.logger, err, "user update")
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), id)
	if err != nil {
		fail(c, h.logger, err, "user update")
		return
	}
	ok(c, "user updated", user)
}

type changeRoleRequest struct {
	RoleID int64 `json:"role_id" binding:"required"`
}

// ChangeRole handles PUT /v1/users/:id/role. Role id and denormalized
// label move together in the store. A promotion to admin clears group
// memberships; admins are unscoped and must not keep a leftover set.
func (h *UserHandler) ChangeRole(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	var req changeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "role_id is required")
		return
	}

	role, err := h.roles.GetByID(c.Request.Context(), req.RoleID)
	if err != nil {
		fail(c, h.logger, err, "role")
		return
	}
	if err := h.users.ChangeRole(c.Request.Context(), id, role.ID); err != nil {
		fail(c, h.logger, err, "role change")
		return
	}
	if role.Name == models.RoleAdmin {
		if err := h.users.ReplaceGroups(c.Request.Context(), id, nil); err != nil {
			fail(c, h.logger, err, "role change")
			return
		}
	}
	ok(c, "role changed", nil)
}

type replaceGroupsRequest struct {
	GroupIDs []int64 `json:"group_ids"`
}

// ReplaceGroups handles PUT /v1/users/:id/groups. Directors and
// regular users hold group sets; admins are unscoped. The replacement
// is all-or-nothing.
func (h *UserHandler) ReplaceGroups(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	var req replaceGroupsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid group set")
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), id)
	if err != nil {
		fail(c, h.logger, err, "user")
		return
	}
	if user.Role == models.RoleAdmin {
		badRequest(c, "group sets are not valid for admins")
		return
	}

	if err := h.users.ReplaceGroups(c.Request.Context(), id, req.GroupIDs); err != nil {
		fail(c, h.logger, err, "group replacement")
		return
	}
	ok(c, "groups replaced", nil)
}

// Delete handles DELETE /v1/users/:id. Admin-class identities are
// deactivated and kept (their uploads and decisions stay attributable);
// user-class identities are removed outright. Self-deletion is blocked.
func (h *UserHandler) Delete(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	caller := middleware.Identity(c)
	if caller != nil && caller.ID == id {
		respond(c, http.StatusConflict, false, "cannot delete your own account", nil)
		return
	}

	user, err := h.users.GetByID(c.Request.Context(), id)
	if err != nil {
		fail(c, h.logger, err, "user")
		return
	}

	if models.IsAdminClass(user.Role) {
		if err := h.users.Deactivate(c.Request.Context(), id); err != nil {
			fail(c, h.logger, err, "user deactivation")
			return
		}
		ok(c, "user deactivated", nil)
		return
	}

	if err := h.users.Delete(c.Request.Context(), id); err != nil {
		fail(c, h.logger, err, "user deletion")
		return
	}
	ok(c, "user deleted", nil)
}
