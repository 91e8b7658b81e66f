package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridianbank/backoffice/internal/db"
	"github.com/meridianbank/backoffice/internal/models"
	"github.com/meridianbank/backoffice/internal/repository"
)

type TaskStore struct {
	pool *pgxpool.Pool
}

func NewTaskStore(pool *pgxpool.Pool) *TaskStore {
	return &TaskStore{pool: pool}
}

const taskColumns = `id, title, description, status, creator_id, created_at`

func (s *TaskStore) Create(ctx context.Context, t *models.Task, assigneeIDs []int64) (*models.Task, error) {
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO tasks (title, description, status, creator_id)
			VALUES ($1, $2, $3, $4)
			RETURNING `+taskColumns,
			t.Title, t.Description, models.TaskOpen, t.CreatorID).
			Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.CreatorID, &t.CreatedAt)
		if err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		for _, uid := range assigneeIDs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO task_assignments (task_id, user_id, status)
				VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
				t.ID, uid, models.AssignmentAssigned); err != nil {
				return fmt.Errorf("assign task: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, t.ID)
}

func (s *TaskStore) GetByID(ctx context.Context, id int64) (*models.Task, error) {
	var t models.Task
	err := s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id).
		Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.CreatorID, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}

	assignees, err := s.assignees(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	t.Assignees = assignees
	return &t, nil
}

func (s *TaskStore) assignees(ctx context.Context, taskID int64) ([]models.TaskAssignment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ta.task_id, ta.user_id, u.name, ta.status
		FROM task_assignments ta
		JOIN users u ON u.id = ta.user_id
		WHERE ta.task_id = $1
		ORDER BY ta.user_id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list assignees: %w", err)
	}
	defer rows.Close()

	assignees := make([]models.TaskAssignment, 0)
	for rows.Next() {
		var a models.TaskAssignment
		if err := rows.Scan(&a.TaskID, &a.UserID, &a.UserName, &a.Status); err != nil {
			return nil, fmt.Errorf("scan assignee: %w", err)
		}
		assignees = append(assignees, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignees: %w", err)
	}
	return assignees, nil
}

// List selects the per-user or admin-wide view.
//
// Per-user: a task is archived once that user's own assignment row is
// completed, regardless of the task-level status. Admin-wide: archived
// only when every assignee completed (and at least one exists). The
// same task can therefore be archived for one viewer and active for
// another.
func (s *TaskStore) List(ctx context.Context, filter repository.TaskFilter) ([]models.Task, int, error) {
	var (
		where string
		args  []any
	)

	if filter.UserID != nil {
		op := "<>"
		if filter.Archived {
			op = "="
		}
		where = fmt.Sprintf(`WHERE EXISTS (
			SELECT 1 FROM task_assignments ta
			WHERE ta.task_id = t.id AND ta.user_id = $1 AND ta.status %s $2)`, op)
		args = []any{*filter.UserID, models.AssignmentCompleted}
	} else {
		allDone := `EXISTS (SELECT 1 FROM task_assignments ta WHERE ta.task_id = t.id)
			AND NOT EXISTS (
				SELECT 1 FROM task_assignments ta
				WHERE ta.task_id = t.id AND ta.status <> $1)`
		if filter.Archived {
			where = "WHERE " + allDone
		} else {
			where = "WHERE NOT (" + allDone + ")"
		}
		args = []any{models.AssignmentCompleted}
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM tasks t "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT t.id, t.title, t.description, t.status, t.creator_id, t.created_at
		FROM tasks t %s
		ORDER BY t.created_at DESC, t.id DESC
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]models.Task, 0)
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.CreatorID, &t.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate tasks: %w", err)
	}

	for i := range tasks {
		assignees, err := s.assignees(ctx, tasks[i].ID)
		if err != nil {
			return nil, 0, err
		}
		tasks[i].Assignees = assignees
	}
	return tasks, total, nil
}

func (s *TaskStore) UpdateStatus(ctx context.Context, id int64, status string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE tasks SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *TaskStore) SetAssigneeStatus(ctx context.Context, taskID, userID int64, status string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE task_assignments SET status = $3
		WHERE task_id = $1 AND user_id = $2`, taskID, userID, status)
	if err != nil {
		return fmt.Errorf("update assignee status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *TaskStore) AddAssignee(ctx context.Context, taskID, userID int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO task_assignments (task_id, user_id, status)
		VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		taskID, userID, models.AssignmentAssigned)
	if err != nil {
		return fmt.Errorf("add assignee: %w", err)
	}
	return nil
}

// RemoveAssignee drops the user's row, and with it their per-user
// status. Files they uploaded stay attached to the task.
func (s *TaskStore) RemoveAssignee(ctx context.Context, taskID, userID int64) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM task_assignments WHERE task_id = $1 AND user_id = $2`, taskID, userID)
	if err != nil {
		return fmt.Errorf("remove assignee: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// The users join is LEFT: uploader_id goes NULL when the uploader was
// hard-deleted, and the file row must still load.
const taskFileColumns = `tf.id, tf.task_id, COALESCE(tf.uploader_id, 0), COALESCE(u.role, ''), tf.file_path, tf.file_name, tf.created_at`

func (s *TaskStore) AddFile(ctx context.Context, f *models.TaskFile) (*models.TaskFile, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO task_files (task_id, uploader_id, file_path, file_name)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		f.TaskID, f.UploaderID, f.FilePath, f.FileName).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("add task file: %w", err)
	}
	return f, nil
}

func (s *TaskStore) GetFile(ctx context.Context, id int64) (*models.TaskFile, error) {
	var f models.TaskFile
	err := s.pool.QueryRow(ctx, `
		SELECT `+taskFileColumns+`
		FROM task_files tf LEFT JOIN users u ON u.id = tf.uploader_id
		WHERE tf.id = $1`, id).
		Scan(&f.ID, &f.TaskID, &f.UploaderID, &f.UploaderRole, &f.FilePath, &f.FileName, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get task file: %w", err)
	}
	return &f, nil
}

func (s *TaskStore) ListFiles(ctx context.Context, taskID int64) ([]models.TaskFile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+taskFileColumns+`
		FROM task_files tf LEFT JOIN users u ON u.id = tf.uploader_id
		WHERE tf.task_id = $1
		ORDER BY tf.id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list task files: %w", err)
	}
	defer rows.Close()

	files := make([]models.TaskFile, 0)
	for rows.Next() {
		var f models.TaskFile
		if err := rows.Scan(&f.ID, &f.TaskID, &f.UploaderID, &f.UploaderRole, &f.FilePath, &f.FileName, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan task file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task files: %w", err)
	}
	return files, nil
}

func (s *TaskStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
