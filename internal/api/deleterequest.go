package api

import (
	"github.com/gin-gonic/gin"
	"github.com/meridianbank/backoffice/internal/repository"
	"github.com/meridianbank/backoffice/internal/storage"
	"go.uber.org/zap"
)

// DeleteRequestHandler serves the review queue for user-initiated
// document deletions.
type DeleteRequestHandler struct {
	requests repository.DeleteRequestRepository
	files    *storage.FileStore
	logger   *zap.Logger
}

func NewDeleteRequestHandler(requests repository.DeleteRequestRepository, files *storage.FileStore, logger *zap.Logger) *DeleteRequestHandler {
	return &DeleteRequestHandler{requests: requests, files: files, logger: logger}
}

// ListPending handles GET /v1/delete-requests. Only pending requests
// show up; decided ones are history, not queue.
func (h *DeleteRequestHandler) ListPending(c *gin.Context) {
	pageNum, limit := pageParams(c, listLimit)
	requests, total, err := h.requests.ListPending(c.Request.Context(), pageNum, limit)
	if err != nil {
		fail(c, h.logger, err, "delete request listing")
		return
	}
	ok(c, "delete requests", pageData(requests, NewPageMeta(pageNum, limit, total)))
}

// Approve handles POST /v1/delete-requests/:id/approve. The request row
// and the document row change in one transaction; the blob goes after
// the commit, so a crash can orphan a file but never a row.
func (h *DeleteRequestHandler) Approve(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	doc, err := h.requests.Approve(c.Request.Context(), id)
	if err != nil {
		fail(c, h.logger, err, "delete request")
		return
	}
	if err := h.files.Remove(doc.FilePath); err != nil {
		h.logger.Warn("orphan blob left behind", zap.String("path", doc.FilePath), zap.Error(err))
	}
	ok(c, "delete request approved", nil)
}

// Reject handles POST /v1/delete-requests/:id/reject. The document is
// untouched; the requester may file again later.
func (h *DeleteRequestHandler) Reject(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	if err := h.requests.Reject(c.Request.Context(), id); err != nil {
		fail(c, h.logger, err, "delete request")
		return
	}
	ok(c, "delete request rejected", nil)
}
