package models

import "time"

// Role names. Every user carries exactly one role; "admin" and "director"
// form the admin class, "user" the user class. The set is extensible via
// the roles table, but these three are seeded and drive the auth gates.
const (
	RoleAdmin    = "admin"
	RoleDirector = "director"
	RoleUser     = "user"
)

// IsAdminClass reports whether the role may use admin-only endpoints.
func IsAdminClass(role string) bool {
	return role == RoleAdmin || role == RoleDirector
}

// User is a person record. Admin-class and user-class identities share
// this one table; the role decides which gates accept them.
//
// Role duplicates the label of the row RoleID points at. The two columns
// are only ever written together (see UserRepository.ChangeRole), so
// listings never need a join.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	TelegramID   string    `json:"telegram_id"`
	PasswordHash string    `json:"-"`
	RoleID       int64     `json:"role_id"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`

	// Populated for directors and regular users; admins are unscoped
	// and carry none.
	GroupIDs []int64 `json:"group_ids,omitempty"`
}

// Role is a named permission bucket.
type Role struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Permission is a flat capability string following the resource:action
// convention, e.g. "document:read".
type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Group is a node in the organizational tree. Root groups have nil parent.
type Group struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id"`
}

// Document metadata. UploaderName, UploaderHandle and GroupName are
// captured at upload time and deliberately not kept in sync with later
// renames. UploaderID is 0 once the uploader has been hard-deleted; the
// snapshot columns keep the attribution readable.
type Document struct {
	ID             int64     `json:"id"`
	Title          string    `json:"title"`
	GroupID        int64     `json:"group_id"`
	UploaderID     int64     `json:"uploader_id"`
	FilePath       string    `json:"-"`
	FileName       string    `json:"file_name"`
	UploaderName   string    `json:"uploader_name"`
	UploaderHandle string    `json:"uploader_handle"`
	GroupName      string    `json:"group_name"`
	CreatedAt      time.Time `json:"created_at"`
}

// Delete request statuses. Approved and rejected are terminal.
const (
	DeleteRequestPending  = "pending"
	DeleteRequestApproved = "approved"
	DeleteRequestRejected = "rejected"
)

type DeleteRequest struct {
	ID          int64     `json:"id"`
	DocumentID  int64     `json:"document_id"`
	RequesterID int64     `json:"requester_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Task-level statuses, set by the creator or an admin.
const (
	TaskOpen       = "open"
	TaskInProgress = "in_progress"
	TaskCompleted  = "completed"
	TaskClosed     = "closed"
)

// Per-assignee statuses, tracked independently of the task status.
const (
	AssignmentAssigned   = "assigned"
	AssignmentInProgress = "in_progress"
	AssignmentCompleted  = "completed"
)

// ValidTaskStatus reports whether s is a recognised task-level status.
func ValidTaskStatus(s string) bool {
	switch s {
	case TaskOpen, TaskInProgress, TaskCompleted, TaskClosed:
		return true
	}
	return false
}

// ValidAssigneeTransition reports whether a regular user may move their
// own assignment row to target. Only forward moves are allowed; a row
// never returns to "assigned".
func ValidAssigneeTransition(target string) bool {
	return target == AssignmentInProgress || target == AssignmentCompleted
}

type Task struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Status      string           `json:"status"`
	CreatorID   int64            `json:"creator_id"`
	CreatedAt   time.Time        `json:"created_at"`
	Assignees   []TaskAssignment `json:"assignees,omitempty"`
}

type TaskAssignment struct {
	TaskID   int64  `json:"task_id"`
	UserID   int64  `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
	Status   string `json:"status"`
}

// ArchivedForUser reports whether the task belongs in the given user's
// archive: true once that user's own row reaches completed, regardless
// of the task-level status.
func (t Task) ArchivedForUser(userID int64) bool {
	for _, a := range t.Assignees {
		if a.UserID == userID {
			return a.Status == AssignmentCompleted
		}
	}
	return false
}

// ArchivedForAdmin reports whether the task belongs in the admin-wide
// archive: every assignee completed, and at least one assignee exists.
// The same task can sit in an individual's archive and the admin's
// active list at the same time.
func (t Task) ArchivedForAdmin() bool {
	if len(t.Assignees) == 0 {
		return false
	}
	for _, a := range t.Assignees {
		if a.Status != AssignmentCompleted {
			return false
		}
	}
	return true
}

// TaskFile is a blob attached to a task. Files uploaded by an
// admin-class identity are visible to every assignee; others only to
// their uploader.
type TaskFile struct {
	ID           int64     `json:"id"`
	TaskID       int64     `json:"task_id"`
	UploaderID   int64     `json:"uploader_id"`
	UploaderRole string    `json:"uploader_role"`
	FilePath     string    `json:"-"`
	FileName     string    `json:"file_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// VisibleTo reports whether the file shows up for the given assignee.
// An orphaned file (uploader hard-deleted, UploaderID 0, empty role)
// stays visible to admins only.
func (f TaskFile) VisibleTo(userID int64) bool {
	return IsAdminClass(f.UploaderRole) || (f.UploaderID != 0 && f.UploaderID == userID)
}

// Notification is broadcast to every active user-class identity at send
// time; per-user read state lives in UserNotification.
type Notification struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type UserNotification struct {
	Notification
	IsRead bool `json:"is_read"`
}
