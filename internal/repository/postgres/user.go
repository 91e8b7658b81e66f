package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridianbank/backoffice/internal/db"
	"github.com/meridianbank/backoffice/internal/models"
	"github.com/meridianbank/backoffice/internal/repository"
)

const uniqueViolation = "23505"

type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

const userColumns = `id, name, telegram_id, password_hash, role_id, role, is_active, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Name, &u.TelegramID, &u.PasswordHash, &u.RoleID, &u.Role, &u.IsActive, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

func (s *UserStore) Create(ctx context.Context, u *models.User, groupIDs []int64) (*models.User, error) {
	// The denormalized role label is filled from the roles table in the
	// same statement that writes the foreign key.
	query := `
		INSERT INTO users (name, telegram_id, password_hash, role_id, role, is_active)
		SELECT $1, $2, $3, r.id, r.name, TRUE
		FROM roles r WHERE r.id = $4
		RETURNING ` + userColumns

	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		created, err := scanUser(tx.QueryRow(ctx, query, u.Name, u.TelegramID, u.PasswordHash, u.RoleID))
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return repository.ErrDuplicateHandle
			}
			// ErrNotFound here means the role id does not exist.
			return err
		}
		*u = *created

		for _, gid := range groupIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO user_groups (user_id, group_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				u.ID, gid); err != nil {
				return fmt.Errorf("insert user group: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.GroupIDs = groupIDs
	return u, nil
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	return s.withGroups(ctx, u)
}

func (s *UserStore) GetActiveByID(ctx context.Context, id int64) (*models.User, error) {
	// Inactive identities fail this lookup exactly like missing ones;
	// the auth gate must not be able to tell the difference.
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND is_active = TRUE`, id))
	if err != nil {
		return nil, err
	}
	return s.withGroups(ctx, u)
}

func (s *UserStore) GetActiveByTelegramID(ctx context.Context, telegramID string) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE telegram_id = $1 AND is_active = TRUE`, telegramID))
	if err != nil {
		return nil, err
	}
	return s.withGroups(ctx, u)
}

func (s *UserStore) withGroups(ctx context.Context, u *models.User) (*models.User, error) {
	ids, err := s.GroupIDs(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.GroupIDs = ids
	return u, nil
}

func (s *UserStore) List(ctx context.Context, filter repository.UserFilter) ([]models.User, int, error) {
	where := "WHERE TRUE"
	args := []any{}
	argPos := 1

	if filter.Role != "" {
		where += fmt.Sprintf(" AND role = $%d", argPos)
		args = append(args, filter.Role)
		argPos++
	}
	if filter.IsActive != nil {
		where += fmt.Sprintf(" AND is_active = $%d", argPos)
		args = append(args, *filter.IsActive)
		argPos++
	}
	if filter.GroupID != 0 {
		where += fmt.Sprintf(" AND id IN (SELECT user_id FROM user_groups WHERE group_id = $%d)", argPos)
		args = append(args, filter.GroupID)
		argPos++
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM users "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM users %s ORDER BY id LIMIT $%d OFFSET $%d",
		userColumns, where, argPos, argPos+1)
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.TelegramID, &u.PasswordHash, &u.RoleID, &u.Role, &u.IsActive, &u.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate users: %w", err)
	}
	return users, total, nil
}

func (s *UserStore) UpdateProfile(ctx context.Context, id int64, name, telegramID, passwordHash *string) error {
	query := "UPDATE users SET id = id"
	args := []any{}
	argPos := 1

	if name != nil {
		query += fmt.Sprintf(", name = $%d", argPos)
		args = append(args, *name)
		argPos++
	}
	if telegramID != nil {
		query += fmt.Sprintf(", telegram_id = $%d", argPos)
		args = append(args, *telegramID)
		argPos++
	}
	if passwordHash != nil {
		query += fmt.Sprintf(", password_hash = $%d", argPos)
		args = append(args, *passwordHash)
		argPos++
	}
	query += fmt.Sprintf(" WHERE id = $%d", argPos)
	args = append(args, id)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return repository.ErrDuplicateHandle
		}
		return fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *UserStore) ChangeRole(ctx context.Context, userID, roleID int64) error {
	// One statement updates both the foreign key and the label; the
	// denormalized column can never drift from the referenced row.
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET role_id = r.id, role = r.name
		FROM roles r
		WHERE r.id = $2 AND users.id = $1`, userID, roleID)
	if err != nil {
		return fmt.Errorf("change role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *UserStore) ReplaceGroups(ctx context.Context, userID int64, groupIDs []int64) error {
	// Full replace, not a diff: the caller's set wins. Both statements
	// run in one transaction so concurrent replaces cannot interleave.
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM user_groups WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("clear user groups: %w", err)
		}
		for _, gid := range groupIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO user_groups (user_id, group_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				userID, gid); err != nil {
				return fmt.Errorf("insert user group: %w", err)
			}
		}
		return nil
	})
}

func (s *UserStore) GroupIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT group_id FROM user_groups WHERE user_id = $1 ORDER BY group_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user groups: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan group id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user groups: %w", err)
	}
	return ids, nil
}

func (s *UserStore) Deactivate(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *UserStore) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
