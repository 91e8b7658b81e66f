package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/meridianbank/backoffice/internal/models"
	"github.com/meridianbank/backoffice/internal/repository"
	"go.uber.org/zap"
)

type fakePerms struct {
	repository.PermissionRepository
	byRole map[int64][]string
	err    error
}

func (f *fakePerms) NamesForRole(_ context.Context, roleID int64) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byRole[roleID], nil
}

func permRouter(perms repository.PermissionRepository, identity *models.User, name string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ping",
		func(c *gin.Context) {
			if identity != nil {
				c.Set(ContextKeyIdentity, identity)
			}
		},
		RequirePermission(perms, zap.NewNop(), name),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)
	return r
}

func TestRequirePermission(t *testing.T) {
	perms := &fakePerms{byRole: map[int64][]string{
		1: {PermDocumentRead, PermDocumentCreate},
		2: {PermDocumentRead},
	}}

	tests := []struct {
		name     string
		identity *models.User
		perm     string
		want     int
	}{
		{"granted", &models.User{ID: 1, RoleID: 1}, PermDocumentCreate, http.StatusOK},
		{"missing permission", &models.User{ID: 2, RoleID: 2}, PermDocumentCreate, http.StatusForbidden},
		{"no identity", nil, PermDocumentRead, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := permRouter(perms, tt.identity, tt.perm)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

// A denial must not reveal whether the identity or the permission was
// the problem.
func TestForbiddenMessageIsUniform(t *testing.T) {
	perms := &fakePerms{byRole: map[int64][]string{}}

	for _, identity := range []*models.User{nil, {ID: 2, RoleID: 2}} {
		router := permRouter(perms, identity, PermDocumentRead)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

		var body struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Message != "no permission" {
			t.Fatalf("message = %q, want %q", body.Message, "no permission")
		}
	}
}

func TestPermissionLookupFailure(t *testing.T) {
	perms := &fakePerms{err: errors.New("connection reset")}
	router := permRouter(perms, &models.User{ID: 1, RoleID: 1}, PermDocumentRead)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if body := w.Body.String(); strings.Contains(body, "connection reset") {
		t.Fatalf("internal error detail leaked: %s", body)
	}
}
