package repository

import (
	"context"
	"errors"

	"github.com/meridianbank/backoffice/internal/models"
)

// Sentinel errors shared by all stores. Handlers map these onto the
// response envelope; anything else is an internal error.
var (
	ErrNotFound = errors.New("not found")

	// ErrDuplicateHandle: telegram handle already taken, across both
	// identity subtypes.
	ErrDuplicateHandle = errors.New("telegram handle already in use")

	// ErrDuplicateAssignment: the (role, permission) pair already exists.
	ErrDuplicateAssignment = errors.New("permission already assigned to role")

	// ErrDuplicatePermission: a permission with this name already exists.
	ErrDuplicatePermission = errors.New("permission already exists")

	// ErrDuplicatePending: a pending delete request for this
	// (document, requester) pair already exists.
	ErrDuplicatePending = errors.New("pending delete request already exists")

	// ErrGroupCycle: the requested reparent would make the group its
	// own ancestor.
	ErrGroupCycle = errors.New("group reparent would create a cycle")

	// ErrGroupNotEmpty: the group still has children, members or
	// documents.
	ErrGroupNotEmpty = errors.New("group is not empty")
)

// UserFilter narrows user listings. Zero values mean "no filter".
type UserFilter struct {
	Role     string
	GroupID  int64
	IsActive *bool
	Page     int
	Limit    int
}

// UserRepository handles identity records for both subtypes.
type UserRepository interface {
	// Create inserts the user and their group set (directors and
	// regular users; admins carry none) in one transaction. Returns
	// ErrDuplicateHandle on a taken handle.
	Create(ctx context.Context, u *models.User, groupIDs []int64) (*models.User, error)

	// GetByID returns the user regardless of active status.
	GetByID(ctx context.Context, id int64) (*models.User, error)

	// GetActiveByID is the auth-gate lookup: inactive identities are
	// reported as ErrNotFound, indistinguishable from missing ones.
	GetActiveByID(ctx context.Context, id int64) (*models.User, error)

	// GetActiveByTelegramID is the login lookup.
	GetActiveByTelegramID(ctx context.Context, telegramID string) (*models.User, error)

	List(ctx context.Context, filter UserFilter) ([]models.User, int, error)

	// UpdateProfile changes name/handle/password hash. Nil fields are
	// left untouched.
	UpdateProfile(ctx context.Context, id int64, name, telegramID, passwordHash *string) error

	// ChangeRole updates role_id and the denormalized label in a
	// single statement so the two can never drift.
	ChangeRole(ctx context.Context, userID, roleID int64) error

	// ReplaceGroups fully replaces the user's group memberships
	// (delete then insert, one transaction).
	ReplaceGroups(ctx context.Context, userID int64, groupIDs []int64) error

	GroupIDs(ctx context.Context, userID int64) ([]int64, error)

	// Deactivate flips is_active off; used for admin-class identities,
	// which are never hard-deleted.
	Deactivate(ctx context.Context, id int64) error

	// Delete hard-deletes a user-class identity; group memberships
	// cascade.
	Delete(ctx context.Context, id int64) error
}

// RoleRepository reads the role table.
type RoleRepository interface {
	List(ctx context.Context) ([]models.Role, error)
	GetByID(ctx context.Context, id int64) (*models.Role, error)
}

// PermissionRepository handles the permission graph.
type PermissionRepository interface {
	List(ctx context.Context) ([]models.Permission, error)
	Create(ctx context.Context, name, description string) (*models.Permission, error)

	// NamesForRole resolves the role's permission set. Recomputed per
	// request; assignment changes are visible immediately.
	NamesForRole(ctx context.Context, roleID int64) ([]string, error)

	// Assign returns ErrDuplicateAssignment for an existing pair.
	Assign(ctx context.Context, roleID, permissionID int64) error
	Unassign(ctx context.Context, roleID, permissionID int64) error
	ListForRole(ctx context.Context, roleID int64) ([]models.Permission, error)
}

// GroupRepository handles the organizational tree.
type GroupRepository interface {
	Create(ctx context.Context, name string, parentID *int64) (*models.Group, error)
	GetByID(ctx context.Context, id int64) (*models.Group, error)

	// Children returns roots when parentID is nil, otherwise one level
	// of direct children.
	Children(ctx context.Context, parentID *int64) ([]models.Group, error)

	// Descendants returns the node and its transitive children. The
	// traversal is depth-bounded, so it terminates even if a cycle
	// slipped into the data.
	Descendants(ctx context.Context, id int64) ([]models.Group, error)

	// DescendantIDs expands a membership set into its full closure.
	DescendantIDs(ctx context.Context, rootIDs []int64) ([]int64, error)

	// Update renames and/or reparents. Returns ErrGroupCycle when the
	// new parent sits inside the group's own subtree.
	Update(ctx context.Context, id int64, name string, parentID *int64) error

	// Delete removes an empty group; ErrGroupNotEmpty otherwise.
	Delete(ctx context.Context, id int64) error
}

// DocumentFilter narrows document listings. A nil GroupIDs slice means
// "no group restriction" (admin view); an empty one matches nothing.
type DocumentFilter struct {
	GroupIDs []int64
	Title    string
	Page     int
	Limit    int
}

type DocumentRepository interface {
	Create(ctx context.Context, d *models.Document) (*models.Document, error)
	GetByID(ctx context.Context, id int64) (*models.Document, error)
	List(ctx context.Context, filter DocumentFilter) ([]models.Document, int, error)
	Update(ctx context.Context, id int64, title *string, groupID *int64, groupName *string, filePath, fileName *string) error
	Delete(ctx context.Context, id int64) error
}

type DeleteRequestRepository interface {
	// Create returns ErrDuplicatePending when a pending request for
	// the same (document, requester) pair exists. Enforced by a
	// partial unique index, not a prior SELECT.
	Create(ctx context.Context, documentID, requesterID int64) (*models.DeleteRequest, error)

	GetByID(ctx context.Context, id int64) (*models.DeleteRequest, error)
	ListPending(ctx context.Context, page, limit int) ([]models.DeleteRequest, int, error)

	// Approve transitions pending -> approved and deletes the document
	// row in one transaction, returning the deleted document so the
	// caller can remove the blob. ErrNotFound when the request is
	// missing or not pending.
	Approve(ctx context.Context, id int64) (*models.Document, error)

	// Reject transitions pending -> rejected; the document is untouched.
	Reject(ctx context.Context, id int64) error
}

// TaskFilter selects tasks for either the per-user or the admin-wide
// view, split into active and archived per the dual-status rules.
type TaskFilter struct {
	UserID   *int64
	Archived bool
	Page     int
	Limit    int
}

type TaskRepository interface {
	Create(ctx context.Context, t *models.Task, assigneeIDs []int64) (*models.Task, error)
	GetByID(ctx context.Context, id int64) (*models.Task, error)
	List(ctx context.Context, filter TaskFilter) ([]models.Task, int, error)
	UpdateStatus(ctx context.Context, id int64, status string) error

	// SetAssigneeStatus updates one user's own row. ErrNotFound when
	// the user is not assigned.
	SetAssigneeStatus(ctx context.Context, taskID, userID int64, status string) error

	AddAssignee(ctx context.Context, taskID, userID int64) error
	RemoveAssignee(ctx context.Context, taskID, userID int64) error

	AddFile(ctx context.Context, f *models.TaskFile) (*models.TaskFile, error)
	GetFile(ctx context.Context, id int64) (*models.TaskFile, error)
	ListFiles(ctx context.Context, taskID int64) ([]models.TaskFile, error)

	Delete(ctx context.Context, id int64) error
}

type NotificationRepository interface {
	// Broadcast inserts the notification and fans it out to every
	// active user-class identity in the same transaction. Returns the
	// stored notification and the number of recipients.
	Broadcast(ctx context.Context, title, body string) (*models.Notification, int, error)

	ListForUser(ctx context.Context, userID int64, page, limit int) ([]models.UserNotification, int, error)
	MarkRead(ctx context.Context, userID, notificationID int64) error
	UnreadCount(ctx context.Context, userID int64) (int, error)
}
