package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meridianbank/backoffice/internal/auth"
	"github.com/meridianbank/backoffice/internal/models"
	"github.com/meridianbank/backoffice/internal/repository"
)

// fakeUsers serves GetActiveByID from a fixed map; everything else is
// unused by the gates and panics via the embedded nil interface.
type fakeUsers struct {
	repository.UserRepository
	active map[int64]*models.User
}

func (f *fakeUsers) GetActiveByID(_ context.Context, id int64) (*models.User, error) {
	u, ok := f.active[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func testIssuer() *auth.Issuer {
	return auth.NewIssuer("access-secret", time.Minute, "refresh-secret", time.Hour)
}

func gateRouter(gate gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ping", gate, func(c *gin.Context) {
		user := Identity(c)
		c.JSON(http.StatusOK, gin.H{"id": user.ID})
	})
	return r
}

func TestRequireAdminGate(t *testing.T) {
	issuer := testIssuer()
	users := &fakeUsers{active: map[int64]*models.User{
		1: {ID: 1, TelegramID: "boss", Role: models.RoleAdmin, RoleID: 1, IsActive: true},
		2: {ID: 2, TelegramID: "dir", Role: models.RoleDirector, RoleID: 2, IsActive: true},
		3: {ID: 3, TelegramID: "worker", Role: models.RoleUser, RoleID: 3, IsActive: true},
	}}
	router := gateRouter(RequireAdmin(issuer, users))

	token := func(id int64, handle, role string) string {
		pair, err := issuer.IssuePair(id, handle, role)
		if err != nil {
			t.Fatalf("issue pair: %v", err)
		}
		return pair.AccessToken
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"admin passes", "Bearer " + token(1, "boss", models.RoleAdmin), http.StatusOK},
		{"director passes", "Bearer " + token(2, "dir", models.RoleDirector), http.StatusOK},
		{"user class rejected", "Bearer " + token(3, "worker", models.RoleUser), http.StatusUnauthorized},
		{"unknown identity", "Bearer " + token(99, "ghost", models.RoleAdmin), http.StatusUnauthorized},
		{"stale handle", "Bearer " + token(1, "old-handle", models.RoleAdmin), http.StatusUnauthorized},
		{"bare token accepted", token(1, "boss", models.RoleAdmin), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestRequireUserGate(t *testing.T) {
	issuer := testIssuer()
	users := &fakeUsers{active: map[int64]*models.User{
		1: {ID: 1, TelegramID: "boss", Role: models.RoleAdmin, IsActive: true},
		3: {ID: 3, TelegramID: "worker", Role: models.RoleUser, IsActive: true},
	}}
	router := gateRouter(RequireUser(issuer, users))

	adminPair, _ := issuer.IssuePair(1, "boss", models.RoleAdmin)
	userPair, _ := issuer.IssuePair(3, "worker", models.RoleUser)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+userPair.AccessToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("user should pass, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+adminPair.AccessToken)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("admin class must not pass the user gate, got %d", w.Code)
	}
}

func TestQueryTokenFallback(t *testing.T) {
	issuer := testIssuer()
	users := &fakeUsers{active: map[int64]*models.User{
		3: {ID: 3, TelegramID: "worker", Role: models.RoleUser, IsActive: true},
	}}
	router := gateRouter(RequireAnyIdentity(issuer, users))

	pair, _ := issuer.IssuePair(3, "worker", models.RoleUser)
	req := httptest.NewRequest(http.MethodGet, "/ping?token="+pair.AccessToken, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("query token should be accepted, got %d", w.Code)
	}
}
