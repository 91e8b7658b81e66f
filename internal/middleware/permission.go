package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meridianbank/backoffice/internal/repository"
	"go.uber.org/zap"
)

// Permission names, resource:action. Declaring a new protected
// capability means adding a permissions row and referencing its name
// from a route; this gate never changes.
const (
	PermDocumentRead   = "document:read"
	PermDocumentCreate = "document:create"
	PermDocumentUpdate = "document:update"
	PermDocumentDelete = "document:delete"
	PermTaskRead       = "task:read"
	PermTaskManage     = "task:manage"
	PermUserManage     = "user:manage"
	PermGroupManage    = "group:manage"
	PermRoleManage     = "role:manage"
	PermNotifyManage   = "notification:manage"
)

// RequirePermission checks the resolved identity's role against a
// statically declared permission name. The role's permission set is
// recomputed on every request; there is no cache to go stale, so an
// assignment change is effective on the next call.
//
// A missing identity and a missing permission produce the same
// response: which permissions exist is nobody's business.
func RequirePermission(perms repository.PermissionRepository, logger *zap.Logger, name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		forbid := func() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"message": "no permission",
				"data":    nil,
			})
		}

		user := Identity(c)
		if user == nil {
			forbid()
			return
		}

		names, err := perms.NamesForRole(c.Request.Context(), user.RoleID)
		if err != nil {
			logger.Error("resolve permission set", zap.Error(err), zap.Int64("role_id", user.RoleID))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "internal error",
				"data":    nil,
			})
			return
		}

		for _, n := range names {
			if n == name {
				c.Next()
				return
			}
		}
		forbid()
	}
}
