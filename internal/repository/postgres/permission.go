package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridianbank/backoffice/internal/models"
	"github.com/meridianbank/backoffice/internal/repository"
)

type PermissionStore struct {
	pool *pgxpool.Pool
}

func NewPermissionStore(pool *pgxpool.Pool) *PermissionStore {
	return &PermissionStore{pool: pool}
}

func (s *PermissionStore) List(ctx context.Context) ([]models.Permission, error) {
	return s.queryPermissions(ctx,
		`SELECT id, name, description FROM permissions ORDER BY name`)
}

func (s *PermissionStore) Create(ctx context.Context, name, description string) (*models.Permission, error) {
	var p models.Permission
	err := s.pool.QueryRow(ctx,
		`INSERT INTO permissions (name, description) VALUES ($1, $2) RETURNING id, name, description`,
		name, description).Scan(&p.ID, &p.Name, &p.Description)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, repository.ErrDuplicatePermission
		}
		return nil, fmt.Errorf("create permission: %w", err)
	}
	return &p, nil
}

// NamesForRole resolves the permission set for a role. No caching: a
// role_permissions change is visible on the very next request.
func (s *PermissionStore) NamesForRole(ctx context.Context, roleID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.name
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1`, roleID)
	if err != nil {
		return nil, fmt.Errorf("permissions for role: %w", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan permission name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permission names: %w", err)
	}
	return names, nil
}

func (s *PermissionStore) Assign(ctx context.Context, roleID, permissionID int64) error {
	// Plain insert: a duplicate pair must surface as a conflict, not
	// be silently ignored.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`,
		roleID, permissionID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == uniqueViolation {
				return repository.ErrDuplicateAssignment
			}
			// 23503: role or permission does not exist.
			if pgErr.Code == "23503" {
				return repository.ErrNotFound
			}
		}
		return fmt.Errorf("assign permission: %w", err)
	}
	return nil
}

func (s *PermissionStore) Unassign(ctx context.Context, roleID, permissionID int64) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`,
		roleID, permissionID)
	if err != nil {
		return fmt.Errorf("unassign permission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *PermissionStore) ListForRole(ctx context.Context, roleID int64) ([]models.Permission, error) {
	return s.queryPermissions(ctx, `
		SELECT p.id, p.name, p.description
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.name`, roleID)
}

func (s *PermissionStore) queryPermissions(ctx context.Context, query string, args ...any) ([]models.Permission, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query permissions: %w", err)
	}
	defer rows.Close()

	perms := make([]models.Permission, 0)
	for rows.Next() {
		var p models.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permissions: %w", err)
	}
	return perms, nil
}
