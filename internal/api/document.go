package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/meridianbank/backoffice/internal/middleware"
	"github.com/meridianbank/backoffice/internal/models"
	"github.com/meridianbank/backoffice/internal/repository"
	"github.com/meridianbank/backoffice/internal/storage"
	"go.uber.org/zap"
)

// DocumentHandler serves document upload, listing, download, update and
// the two-track deletion flow. Visibility is group-scoped: admins see
// everything, everyone else sees the closure of their group memberships
// (their groups plus all transitive subgroups).
type DocumentHandler struct {
	documents repository.DocumentRepository
	requests  repository.DeleteRequestRepository
	groups    repository.GroupRepository
	users     repository.UserRepository
	files     *storage.FileStore
	logger    *zap.Logger
}

func NewDocumentHandler(
	documents repository.DocumentRepository,
	requests repository.DeleteRequestRepository,
	groups repository.GroupRepository,
	users repository.UserRepository,
	files *storage.FileStore,
	logger *zap.Logger,
) *DocumentHandler {
	return &DocumentHandler{
		documents: documents,
		requests:  requests,
		groups:    groups,
		users:     users,
		files:     files,
		logger:    logger,
	}
}

// visibleGroupIDs resolves the caller's document scope. The whole
// admin class (admin, director) is unrestricted: nil scope. User-class
// callers get the closure of their group memberships; an empty slice
// means no visible groups at all.
func (h *DocumentHandler) visibleGroupIDs(ctx context.Context, user *models.User) ([]int64, error) {
	if models.IsAdminClass(user.Role) {
		return nil, nil
	}
	memberOf, err := h.users.GroupIDs(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if len(memberOf) == 0 {
		return []int64{}, nil
	}
	return h.groups.DescendantIDs(ctx, memberOf)
}

// canSeeGroup reports whether groupID is inside the caller's scope.
func canSeeGroup(scope []int64, groupID int64) bool {
	if scope == nil {
		return true
	}
	for _, id := range scope {
		if id == groupID {
			return true
		}
	}
	return false
}

// Upload handles POST /v1/documents, a multipart form with title,
// group_id and file. Uploader name, handle and group name are frozen
// into the document row at this moment.
func (h *DocumentHandler) Upload(c *gin.Context) {
	user := middleware.Identity(c)

	title := c.PostForm("title")
	groupIDRaw := c.PostForm("group_id")
	if title == "" || groupIDRaw == "" {
		badRequest(c, "title and group_id are required")
		return
	}
	groupID, err := strconv.ParseInt(groupIDRaw, 10, 64)
	if err != nil || groupID <= 0 {
		badRequest(c, "invalid group_id")
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file is required")
		return
	}

	group, err := h.groups.GetByID(c.Request.Context(), groupID)
	if err != nil {
		fail(c, h.logger, err, "group")
		return
	}

	scope, err := h.visibleGroupIDs(c.Request.Context(), user)
	if err != nil {
		fail(c, h.logger, err, "document upload")
		return
	}
	if !canSeeGroup(scope, group.ID) {
		forbidden(c, "no permission")
		return
	}

	src, err := header.Open()
	if err != nil {
		fail(c, h.logger, err, "document upload")
		return
	}
	defer src.Close()

	path, err := h.files.Save(src, header.Filename)
	if err != nil {
		fail(c, h.logger, err, "document upload")
		return
	}

	doc, err := h.documents.Create(c.Request.Context(), &models.Document{
		Title:          title,
		GroupID:        group.ID,
		UploaderID:     user.ID,
		FilePath:       path,
		FileName:       header.Filename,
		UploaderName:   user.Name,
		UploaderHandle: user.TelegramID,
		GroupName:      group.Name,
	})
	if err != nil {
		// The row never landed, so the blob must not linger.
		if rmErr := h.files.Remove(path); rmErr != nil {
			h.logger.Warn("orphan blob left behind", zap.String("path", path), zap.Error(rmErr))
		}
		fail(c, h.logger, err, "document upload")
		return
	}

	created(c, "document uploaded", doc)
}

// List handles GET /v1/documents with optional title search.
func (h *DocumentHandler) List(c *gin.Context) {
	user := middleware.Identity(c)
	pageNum, limit := pageParams(c, listLimit)

	scope, err := h.visibleGroupIDs(c.Request.Context(), user)
	if err != nil {
		fail(c, h.logger, err, "document listing")
		return
	}

	docs, total, err := h.documents.List(c.Request.Context(), repository.DocumentFilter{
		GroupIDs: scope,
		Title:    c.Query("title"),
		Page:     pageNum,
		Limit:    limit,
	})
	if err != nil {
		fail(c, h.logger, err, "document listing")
		return
	}
	ok(c, "documents", pageData(docs, NewPageMeta(pageNum, limit, total)))
}

// Get handles GET /v1/documents/:id. Out-of-scope documents 403, they
// do not pretend to be missing.
func (h *DocumentHandler) Get(c *gin.Context) {
	doc, okDoc := h.loadVisible(c)
	if !okDoc {
		return
	}
	ok(c, "document", doc)
}

// Download handles GET /v1/documents/:id/download, streaming the blob
// under its original filename.
func (h *DocumentHandler) Download(c *gin.Context) {
	doc, okDoc := h.loadVisible(c)
	if !okDoc {
		return
	}
	f, err := h.files.Open(doc.FilePath)
	if err != nil {
		fail(c, h.logger, err, "document download")
		return
	}
	defer f.Close()
	streamAttachment(c, h.logger, f, doc.FileName)
}

// streamAttachment copies the blob into the response. Headers are
// already out by the time a mid-stream error can occur, so the only
// honest signal left is tearing the connection down; the client sees a
// short body instead of a silently truncated success.
func streamAttachment(c *gin.Context, logger *zap.Logger, f *os.File, fileName string) {
	info, err := f.Stat()
	if err != nil {
		fail(c, logger, err, "document download")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	c.Header("Content-Type", "application/octet-stream")
	c.Header("Content-Length", strconv.FormatInt(info.Size(), 10))
	c.Status(http.StatusOK)

	if _, err := io.Copy(c.Writer, f); err != nil {
		logger.Warn("stream interrupted", zap.String("file", fileName), zap.Error(err))
		c.Abort()
		if conn, _, hjErr := c.Writer.Hijack(); hjErr == nil {
			conn.Close()
		}
	}
}

// loadVisible fetches the document and enforces the caller's scope.
func (h *DocumentHandler) loadVisible(c *gin.Context) (*models.Document, bool) {
	user := middleware.Identity(c)
	id, okID := pathID(c, "id")
	if !okID {
		return nil, false
	}

	doc, err := h.documents.GetByID(c.Request.Context(), id)
	if err != nil {
		fail(c, h.logger, err, "document")
		return nil, false
	}

	scope, err := h.visibleGroupIDs(c.Request.Context(), user)
	if err != nil {
		fail(c, h.logger, err, "document")
		return nil, false
	}
	if !canSeeGroup(scope, doc.GroupID) {
		forbidden(c, "no permission")
		return nil, false
	}
	return doc, true
}

// Update handles PUT /v1/documents/:id, a multipart form. Title, group
// and the file itself may each be replaced independently. A group move
// refreshes the frozen group name; the uploader snapshot stays.
func (h *DocumentHandler) Update(c *gin.Context) {
	doc, okDoc := h.loadVisible(c)
	if !okDoc {
		return
	}
	user := middleware.Identity(c)

	var title, groupName, filePath, fileName *string
	var groupID *int64

	if v := c.PostForm("title"); v != "" {
		title = &v
	}
	if raw := c.PostForm("group_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			badRequest(c, "invalid group_id")
			return
		}
		group, err := h.groups.GetByID(c.Request.Context(), id)
		if err != nil {
			fail(c, h.logger, err, "group")
			return
		}
		scope, err := h.visibleGroupIDs(c.Request.Context(), user)
		if err != nil {
			fail(c, h.logger, err, "document update")
			return
		}
		if !canSeeGroup(scope, group.ID) {
			forbidden(c, "no permission")
			return
		}
		groupID = &group.ID
		groupName = &group.Name
	}

	oldPath := ""
	if header, err := c.FormFile("file"); err == nil {
		src, err := header.Open()
		if err != nil {
			fail(c, h.logger, err, "document update")
			return
		}
		path, err := h.files.Save(src, header.Filename)
		src.Close()
		if err != nil {
			fail(c, h.logger, err, "document update")
			return
		}
		filePath = &path
		fileName = &header.Filename
		oldPath = doc.FilePath
	}

	if title == nil && groupID == nil && filePath == nil {
		badRequest(c, "nothing to update")
		return
	}

	if err := h.documents.Update(c.Request.Context(), doc.ID, title, groupID, groupName, filePath, fileName); err != nil {
		if filePath != nil {
			_ = h.files.Remove(*filePath)
		}
		fail(c, h.logger, err, "document update")
		return
	}
	if oldPath != "" {
		if err := h.files.Remove(oldPath); err != nil {
			h.logger.Warn("stale blob left behind", zap.String("path", oldPath), zap.Error(err))
		}
	}

	updated, err := h.documents.GetByID(c.Request.Context(), doc.ID)
	if err != nil {
		fail(c, h.logger, err, "document update")
		return
	}
	ok(c, "document updated", updated)
}

// Delete handles DELETE /v1/documents/:id. Admins delete on the spot.
// The uploader gets a pending delete request queued for review instead.
// Anyone else is refused even when the document is in their scope.
func (h *DocumentHandler) Delete(c *gin.Context) {
	doc, okDoc := h.loadVisible(c)
	if !okDoc {
		return
	}
	user := middleware.Identity(c)

	if user.Role == models.RoleAdmin {
		if err := h.documents.Delete(c.Request.Context(), doc.ID); err != nil {
			fail(c, h.logger, err, "document deletion")
			return
		}
		if err := h.files.Remove(doc.FilePath); err != nil {
			h.logger.Warn("orphan blob left behind", zap.String("path", doc.FilePath), zap.Error(err))
		}
		ok(c, "document deleted", nil)
		return
	}

	if doc.UploaderID != user.ID {
		forbidden(c, "no permission")
		return
	}

	req, err := h.requests.Create(c.Request.Context(), doc.ID, user.ID)
	if err != nil {
		fail(c, h.logger, err, "delete request")
		return
	}
	respond(c, http.StatusAccepted, true, "delete request submitted", req)
}
