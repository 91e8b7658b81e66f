package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/meridianbank/backoffice/internal/repository"
	"go.uber.org/zap"
)

// Envelope is the one response shape every endpoint uses.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func respond(c *gin.Context, status int, success bool, message string, data any) {
	c.JSON(status, Envelope{Success: success, Message: message, Data: data})
}

func ok(c *gin.Context, message string, data any) {
	respond(c, http.StatusOK, true, message, data)
}

func created(c *gin.Context, message string, data any) {
	respond(c, http.StatusCreated, true, message, data)
}

func badRequest(c *gin.Context, message string) {
	respond(c, http.StatusBadRequest, false, message, nil)
}

func forbidden(c *gin.Context, message string) {
	respond(c, http.StatusForbidden, false, message, nil)
}

// fail maps repository sentinel errors onto the envelope. Anything
// unrecognized is an internal error: logged server-side, surfaced as a
// generic message so no exception text ever reaches a client.
func fail(c *gin.Context, logger *zap.Logger, err error, action string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		respond(c, http.StatusNotFound, false, action+" not found", nil)
	case errors.Is(err, repository.ErrDuplicateHandle),
		errors.Is(err, repository.ErrDuplicateAssignment),
		errors.Is(err, repository.ErrDuplicatePermission),
		errors.Is(err, repository.ErrDuplicatePending),
		errors.Is(err, repository.ErrGroupCycle),
		errors.Is(err, repository.ErrGroupNotEmpty):
		respond(c, http.StatusConflict, false, err.Error(), nil)
	default:
		logger.Error(action+" failed", zap.Error(err))
		respond(c, http.StatusInternalServerError, false, "internal error", nil)
	}
}

// PageMeta is the pagination envelope returned by every listing.
type PageMeta struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalCount  int  `json:"totalCount"`
	Limit       int  `json:"limit"`
	HasNext     bool `json:"hasNext"`
	HasPrev     bool `json:"hasPrev"`
}

// NewPageMeta computes pagination metadata.
func NewPageMeta(page, limit, total int) PageMeta {
	if limit <= 0 {
		limit = defaultLimit
	}
	if page <= 0 {
		page = 1
	}
	totalPages := (total + limit - 1) / limit
	return PageMeta{
		CurrentPage: page,
		TotalPages:  totalPages,
		TotalCount:  total,
		Limit:       limit,
		HasNext:     page < totalPages,
		HasPrev:     page > 1 && total > 0,
	}
}

// page wraps a listing with its pagination metadata.
type page struct {
	Items any `json:"items"`
	PageMeta
}

func pageData(items any, meta PageMeta) page {
	return page{Items: items, PageMeta: meta}
}

const (
	defaultLimit = 20
	// Hard cap for list endpoints regardless of the requested limit.
	listLimit = 50
)

// pageParams reads page/limit from the query string. page floors at 1,
// limit clamps into [1, cap].
func pageParams(c *gin.Context, cap int) (int, int) {
	pageNum := 1
	if raw := c.Query("page"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			pageNum = v
		}
	}
	limit := defaultLimit
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > cap {
		limit = cap
	}
	return pageNum, limit
}

// parsePositive parses a positive int64 from a query value.
func parsePositive(raw string) (int64, bool) {
	v, err := strconv.ParseInt(raw, 10, 64)
	return v, err == nil && v > 0
}

// pathID parses a numeric :param.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}
