package api

import (
	"github.com/gin-gonic/gin"
	"github.com/meridianbank/backoffice/internal/middleware"
	"github.com/meridianbank/backoffice/internal/models"
	"github.com/meridianbank/backoffice/internal/repository"
	"github.com/meridianbank/backoffice/internal/storage"
	"go.uber.org/zap"
)

// TaskHandler serves task assignment. Status is tracked on two axes:
// the task itself (open .. closed, set by admins) and each assignee's
// own row (assigned -> in_progress -> completed, set by the assignee).
// Archival derives from the per-assignee axis, never the task axis.
type TaskHandler struct {
	tasks  repository.TaskRepository
	files  *storage.FileStore
	logger *zap.Logger
}

func NewTaskHandler(tasks repository.TaskRepository, files *storage.FileStore, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, files: files, logger: logger}
}

type createTaskRequest struct {
	Title       string  `json:"title" binding:"required"`
	Description string  `json:"description"`
	AssigneeIDs []int64 `json:"assignee_ids"`
}

// Create handles POST /v1/tasks. Every named assignee starts at
// "assigned"; the task starts open.
func (h *TaskHandler) Create(c *gin.Context) {
	user := middleware.Identity(c)
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "title is required")
		return
	}

	task, err := h.tasks.Create(c.Request.Context(), &models.Task{
		Title:       req.Title,
		Description: req.Description,
		Status:      models.TaskOpen,
		CreatorID:   user.ID,
	}, req.AssigneeIDs)
	if err != nil {
		fail(c, h.logger, err, "task creation")
		return
	}
	created(c, "task created", task)
}

// List handles GET /v1/tasks. Admins get the org-wide view; regular
// users only tasks they are assigned to. ?archived=true flips to the
// archive, whose meaning differs per class: a user's archive holds
// tasks they personally completed, the admin archive only tasks every
// assignee completed.
func (h *TaskHandler) List(c *gin.Context) {
	user := middleware.Identity(c)
	pageNum, limit := pageParams(c, listLimit)

	filter := repository.TaskFilter{
		Archived: c.Query("archived") == "true",
		Page:     pageNum,
		Limit:    limit,
	}
	if !models.IsAdminClass(user.Role) {
		filter.UserID = &user.ID
	}

	tasks, total, err := h.tasks.List(c.Request.Context(), filter)
	if err != nil {
		fail(c, h.logger, err, "task listing")
		return
	}
	ok(c, "tasks", pageData(tasks, NewPageMeta(pageNum, limit, total)))
}

// loadForCaller fetches the task and enforces access: admins see any
// task, users only their own assignments.
func (h *TaskHandler) loadForCaller(c *gin.Context) (*models.Task, bool) {
	user := middleware.Identity(c)
	id, okID := pathID(c, "id")
	if !okID {
		return nil, false
	}
	task, err := h.tasks.GetByID(c.Request.Context(), id)
	if err != nil {
		fail(c, h.logger, err, "task")
		return nil, false
	}
	if !models.IsAdminClass(user.Role) {
		assigned := false
		for _, a := range task.Assignees {
			if a.UserID == user.ID {
				assigned = true
				break
			}
		}
		if !assigned {
			forbidden(c, "no permission")
			return nil, false
		}
	}
	return task, true
}

// Get handles GET /v1/tasks/:id.
func (h *TaskHandler) Get(c *gin.Context) {
	task, okTask := h.loadForCaller(c)
	if !okTask {
		return
	}
	ok(c, "task", task)
}

type taskStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus handles PUT /v1/tasks/:id/status, the task-level axis.
// Admin-only; assignee rows are untouched, so closing a task does not
// mark anyone's work done.
func (h *TaskHandler) UpdateStatus(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	var req taskStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || !models.ValidTaskStatus(req.Status) {
		badRequest(c, "invalid task status")
		return
	}
	if err := h.tasks.UpdateStatus(c.Request.Context(), id, req.Status); err != nil {
		fail(c, h.logger, err, "task status")
		return
	}
	ok(c, "task status updated", nil)
}

// UpdateMyStatus handles PUT /v1/tasks/:id/my-status, the per-assignee
// axis. Only forward moves: in_progress or completed, never back to
// assigned.
func (h *TaskHandler) UpdateMyStatus(c *gin.Context) {
	user := middleware.Identity(c)
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	var req taskStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || !models.ValidAssigneeTransition(req.Status) {
		badRequest(c, "invalid assignment status")
		return
	}
	if err := h.tasks.SetAssigneeStatus(c.Request.Context(), id, user.ID, req.Status); err != nil {
		fail(c, h.logger, err, "assignment")
		return
	}
	ok(c, "assignment status updated", nil)
}

type assigneeRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

// AddAssignee handles POST /v1/tasks/:id/assignees. Re-adding an
// existing assignee is a no-op, their progress survives.
func (h *TaskHandler) AddAssignee(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	var req assigneeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "user_id is required")
		return
	}
	if err := h.tasks.AddAssignee(c.Request.Context(), id, req.UserID); err != nil {
		fail(c, h.logger, err, "assignee")
		return
	}
	created(c, "assignee added", nil)
}

// RemoveAssignee handles DELETE /v1/tasks/:id/assignees/:userID.
func (h *TaskHandler) RemoveAssignee(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	userID, okID := pathID(c, "userID")
	if !okID {
		return
	}
	if err := h.tasks.RemoveAssignee(c.Request.Context(), id, userID); err != nil {
		fail(c, h.logger, err, "assignee")
		return
	}
	ok(c, "assignee removed", nil)
}

// UploadFile handles POST /v1/tasks/:id/files, a multipart form.
// Admin uploads are briefing material visible to every assignee; an
// assignee's upload is their own work product, visible to admins and
// themselves only.
func (h *TaskHandler) UploadFile(c *gin.Context) {
	task, okTask := h.loadForCaller(c)
	if !okTask {
		return
	}
	user := middleware.Identity(c)

	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file is required")
		return
	}
	src, err := header.Open()
	if err != nil {
		fail(c, h.logger, err, "task file upload")
		return
	}
	defer src.Close()

	path, err := h.files.Save(src, header.Filename)
	if err != nil {
		fail(c, h.logger, err, "task file upload")
		return
	}

	file, err := h.tasks.AddFile(c.Request.Context(), &models.TaskFile{
		TaskID:       task.ID,
		UploaderID:   user.ID,
		UploaderRole: user.Role,
		FilePath:     path,
		FileName:     header.Filename,
	})
	if err != nil {
		if rmErr := h.files.Remove(path); rmErr != nil {
			h.logger.Warn("orphan blob left behind", zap.String("path", path), zap.Error(rmErr))
		}
		fail(c, h.logger, err, "task file upload")
		return
	}
	created(c, "file uploaded", file)
}

// ListFiles handles GET /v1/tasks/:id/files. Admins see every file;
// an assignee sees admin uploads plus their own.
func (h *TaskHandler) ListFiles(c *gin.Context) {
	task, okTask := h.loadForCaller(c)
	if !okTask {
		return
	}
	user := middleware.Identity(c)

	files, err := h.tasks.ListFiles(c.Request.Context(), task.ID)
	if err != nil {
		fail(c, h.logger, err, "task files")
		return
	}
	if !models.IsAdminClass(user.Role) {
		visible := files[:0]
		for _, f := range files {
			if f.VisibleTo(user.ID) {
				visible = append(visible, f)
			}
		}
		files = visible
	}
	ok(c, "task files", files)
}

// DownloadFile handles GET /v1/tasks/:id/files/:fileID/download.
func (h *TaskHandler) DownloadFile(c *gin.Context) {
	task, okTask := h.loadForCaller(c)
	if !okTask {
		return
	}
	user := middleware.Identity(c)

	fileID, okID := pathID(c, "fileID")
	if !okID {
		return
	}
	file, err := h.tasks.GetFile(c.Request.Context(), fileID)
	if err != nil {
		fail(c, h.logger, err, "task file")
		return
	}
	if file.TaskID != task.ID {
		fail(c, h.logger, repository.ErrNotFound, "task file")
		return
	}
	if !models.IsAdminClass(user.Role) && !file.VisibleTo(user.ID) {
		forbidden(c, "no permission")
		return
	}

	f, err := h.files.Open(file.FilePath)
	if err != nil {
		fail(c, h.logger, err, "task file download")
		return
	}
	defer f.Close()
	streamAttachment(c, h.logger, f, file.FileName)
}

// Delete handles DELETE /v1/tasks/:id. Assignments and file rows go
// with the task; blobs are swept after the commit.
func (h *TaskHandler) Delete(c *gin.Context) {
	id, okID := pathID(c, "id")
	if !okID {
		return
	}
	files, err := h.tasks.ListFiles(c.Request.Context(), id)
	if err != nil {
		fail(c, h.logger, err, "task deletion")
		return
	}
	if err := h.tasks.Delete(c.Request.Context(), id); err != nil {
		fail(c, h.logger, err, "task deletion")
		return
	}
	for _, f := range files {
		if err := h.files.Remove(f.FilePath); err != nil {
			h.logger.Warn("orphan blob left behind", zap.String("path", f.FilePath), zap.Error(err))
		}
	}
	ok(c, "task deleted", nil)
}
