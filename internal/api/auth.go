package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meridianbank/backoffice/internal/auth"
	"github.com/meridianbank/backoffice/internal/middleware"
	"github.com/meridianbank/backoffice/internal/models"
	"github.com/meridianbank/backoffice/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler serves the login, refresh and logout endpoints plus the
// authenticated profile. Login is split per identity class: the user
// portal and the admin portal call different routes, and a valid
// password with the wrong class still fails.
type AuthHandler struct {
	users   repository.UserRepository
	issuer  *auth.Issuer
	refresh *auth.RefreshStore
	logger  *zap.Logger
}

func NewAuthHandler(
	users repository.UserRepository,
	issuer *auth.Issuer,
	refresh *auth.RefreshStore,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{users: users, issuer: issuer, refresh: refresh, logger: logger}
}

type loginRequest struct {
	TelegramID string `json:"telegram_id" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type loginResponse struct {
	auth.TokenPair
	User *models.User `json:"user"`
}

// LoginUser handles POST /v1/auth/login. Only user-class identities get
// through; an admin's credentials at the user portal are rejected with
// the same message as a wrong password.
func (h *AuthHandler) LoginUser(c *gin.Context) {
	h.login(c, func(role string) bool { return role == models.RoleUser })
}

// LoginAdmin handles POST /v1/auth/admin/login for the admin class.
func (h *AuthHandler) LoginAdmin(c *gin.Context) {
	h.login(c, models.IsAdminClass)
}

func (h *AuthHandler) login(c *gin.Context, classOK func(role string) bool) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "telegram_id and password are required")
		return
	}

	user, err := h.users.GetActiveByTelegramID(c.Request.Context(), req.TelegramID)
	if errors.Is(err, repository.ErrNotFound) {
		respond(c, http.StatusUnauthorized, false, "invalid credentials", nil)
		return
	}
	if err != nil {
		fail(c, h.logger, err, "login")
		return
	}

	// Unknown handle, wrong password and wrong identity class all
	// produce the same response.
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		respond(c, http.StatusUnauthorized, false, "invalid credentials", nil)
		return
	}
	if !classOK(user.Role) {
		respond(c, http.StatusUnauthorized, false, "invalid credentials", nil)
		return
	}

	pair, err := h.issuer.IssuePair(user.ID, user.TelegramID, user.Role)
	if err != nil {
		fail(c, h.logger, err, "login")
		return
	}
	if err := h.refresh.Save(c.Request.Context(), user.ID, pair.RefreshToken); err != nil {
		fail(c, h.logger, err, "login")
		return
	}

	ok(c, "login successful", loginResponse{TokenPair: pair, User: user})
}

// Refresh handles POST /v1/auth/refresh. The old refresh token must be
// both cryptographically valid and still on the allow-list; it is
// rotated out in the same call, so replaying it later fails.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "refresh_token is required")
		return
	}

	claims, err := h.issuer.ParseRefresh(req.RefreshToken)
	if err != nil {
		respond(c, http.StatusUnauthorized, false, "unauthorized", nil)
		return
	}
	if err := h.refresh.Validate(c.Request.Context(), req.RefreshToken); err != nil {
		if errors.Is(err, auth.ErrRefreshRevoked) {
			respond(c, http.StatusUnauthorized, false, "unauthorized", nil)
			return
		}
		fail(c, h.logger, err, "refresh")
		return
	}

	// Reload the identity: deactivation and role changes since issue
	// time must stick.
	user, err := h.users.GetActiveByID(c.Request.Context(), claims.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		respond(c, http.StatusUnauthorized, false, "unauthorized", nil)
		return
	}
	if err != nil {
		fail(c, h.logger, err, "refresh")
		return
	}

	pair, err := h.issuer.IssuePair(user.ID, user.TelegramID, user.Role)
	if err != nil {
		fail(c, h.logger, err, "refresh")
		return
	}
	if err := h.refresh.Rotate(c.Request.Context(), user.ID, req.RefreshToken, pair.RefreshToken); err != nil {
		fail(c, h.logger, err, "refresh")
		return
	}

	ok(c, "token refreshed", pair)
}

// Logout handles POST /v1/auth/logout. Revokes the presented refresh
// token; access tokens simply age out. Idempotent.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "refresh_token is required")
		return
	}
	if err := h.refresh.Revoke(c.Request.Context(), req.RefreshToken); err != nil {
		fail(c, h.logger, err, "logout")
		return
	}
	ok(c, "logged out", nil)
}

// Me handles GET /v1/me for any authenticated identity.
func (h *AuthHandler) Me(c *gin.Context) {
	user := middleware.Identity(c)
	if user == nil {
		respond(c, http.StatusUnauthorized, false, "unauthorized", nil)
		return
	}
	if user.Role != models.RoleAdmin {
		groupIDs, err := h.users.GroupIDs(c.Request.Context(), user.ID)
		if err != nil {
			fail(c, h.logger, err, "profile")
			return
		}
		user.GroupIDs = groupIDs
	}
	ok(c, "profile", user)
}

type updateMeRequest struct {
	Name       *string `json:"name"`
	TelegramID *string `json:"telegram_id"`
	Password   *string `json:"password" binding:"omitempty,min=8"`
}

// UpdateMe handles PUT /v1/me. Partial update of the caller's own
// name, handle and password. A handle change invalidates outstanding
// tokens because the gates compare the token's embedded handle.
func (h *AuthHandler) UpdateMe(c *gin.Context) {
	user := middleware.Identity(c)
	if user == nil {
		respond(c, http.StatusUnauthorized, false, "unauthorized", nil)
		return
	}

	var req updateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid profile update")
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
			fail(c, h.logger, err, "profile update")
			return
		}
		s := string(raw)
		hash = &s
	}

	if err := h.users.UpdateProfile(c.Request.Context(), user.ID, req.Name, req.TelegramID, hash); err != nil {
		fail(c, h.logger, err, "profile update")
		return
	}

	updated, err := h.users.GetByID(c.Request.Context(), user.ID)
	if err != nil {
		fail(c, h.logger, err, "profile update")
		return
	}
	ok(c, "profile updated", updated)
}
