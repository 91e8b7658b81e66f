package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/meridianbank/backoffice/internal/middleware"
	"github.com/meridianbank/backoffice/internal/models"
	"github.com/meridianbank/backoffice/internal/repository"
)

// The stubs below embed the repository interface they fake, so only the
// methods a test actually exercises need a body. Calling anything else
// panics, which is exactly the right failure for a test.

type userRepoStub struct {
	repository.UserRepository
	activeByHandle map[string]*models.User
	activeByID     map[int64]*models.User
	byID           map[int64]*models.User
	groupsByUser   map[int64][]int64
	created        *models.User
	createdGroups  []int64
	replaced       map[int64][]int64
}

func (s *userRepoStub) GetActiveByTelegramID(_ context.Context, handle string) (*models.User, error) {
	u, ok := s.activeByHandle[handle]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *userRepoStub) GetActiveByID(_ context.Context, id int64) (*models.User, error) {
	u, ok := s.activeByID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *userRepoStub) GetByID(_ context.Context, id int64) (*models.User, error) {
	u, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *userRepoStub) GroupIDs(_ context.Context, userID int64) ([]int64, error) {
	return s.groupsByUser[userID], nil
}

func (s *userRepoStub) Create(_ context.Context, user *models.User, groupIDs []int64) (*models.User, error) {
	cp := *user
	cp.ID = 100
	cp.GroupIDs = groupIDs
	s.created = &cp
	s.createdGroups = groupIDs
	return &cp, nil
}

func (s *userRepoStub) ReplaceGroups(_ context.Context, userID int64, groupIDs []int64) error {
	if s.replaced == nil {
		s.replaced = map[int64][]int64{}
	}
	s.replaced[userID] = groupIDs
	return nil
}

type roleRepoStub struct {
	repository.RoleRepository
	byID map[int64]*models.Role
}

func (s *roleRepoStub) GetByID(_ context.Context, id int64) (*models.Role, error) {
	r, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

type groupRepoStub struct {
	repository.GroupRepository
	byID    map[int64]*models.Group
	closure map[int64][]int64
}

func (s *groupRepoStub) GetByID(_ context.Context, id int64) (*models.Group, error) {
	g, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *groupRepoStub) DescendantIDs(_ context.Context, rootIDs []int64) ([]int64, error) {
	seen := map[int64]bool{}
	var out []int64
	for _, root := range rootIDs {
		for _, id := range s.closure[root] {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out, nil
}

type documentRepoStub struct {
	repository.DocumentRepository
	byID    map[int64]*models.Document
	deleted []int64
	listed  *repository.DocumentFilter
}

func (s *documentRepoStub) GetByID(_ context.Context, id int64) (*models.Document, error) {
	d, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *documentRepoStub) Delete(_ context.Context, id int64) error {
	if _, ok := s.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.byID, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *documentRepoStub) List(_ context.Context, filter repository.DocumentFilter) ([]models.Document, int, error) {
	s.listed = &filter
	var out []models.Document
	for _, d := range s.byID {
		if filter.GroupIDs != nil && !canSeeGroup(filter.GroupIDs, d.GroupID) {
			continue
		}
		out = append(out, *d)
	}
	return out, len(out), nil
}

type requestRepoStub struct {
	repository.DeleteRequestRepository
	created []models.DeleteRequest
	nextErr error
}

func (s *requestRepoStub) Create(_ context.Context, documentID, requesterID int64) (*models.DeleteRequest, error) {
	if s.nextErr != nil {
		return nil, s.nextErr
	}
	req := models.DeleteRequest{
		ID:          int64(len(s.created) + 1),
		DocumentID:  documentID,
		RequesterID: requesterID,
		Status:      models.DeleteRequestPending,
	}
	s.created = append(s.created, req)
	return &req, nil
}

type taskRepoStub struct {
	repository.TaskRepository
	byID     map[int64]*models.Task
	listed   *repository.TaskFilter
	statuses map[string]string // "taskID/userID" -> status
}

func (s *taskRepoStub) GetByID(_ context.Context, id int64) (*models.Task, error) {
	task, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *task
	return &cp, nil
}

func (s *taskRepoStub) List(_ context.Context, filter repository.TaskFilter) ([]models.Task, int, error) {
	s.listed = &filter
	return nil, 0, nil
}

func (s *taskRepoStub) SetAssigneeStatus(_ context.Context, taskID, userID int64, status string) error {
	task, ok := s.byID[taskID]
	if !ok {
		return repository.ErrNotFound
	}
	for _, a := range task.Assignees {
		if a.UserID == userID {
			if s.statuses == nil {
				s.statuses = map[string]string{}
			}
			s.statuses[key(taskID, userID)] = status
			return nil
		}
	}
	return repository.ErrNotFound
}

func key(taskID, userID int64) string {
	return fmt.Sprintf("%d/%d", taskID, userID)
}

// asIdentity injects the identity the auth gates would have resolved.
func asIdentity(user *models.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyIdentity, user)
	}
}

func newTestEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

// decodeEnvelope unpacks the response wrapper for assertions.
func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) (bool, string, json.RawMessage) {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, w.Body.String())
	}
	return env.Success, env.Message, env.Data
}
