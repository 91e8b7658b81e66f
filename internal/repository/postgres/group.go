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

// maxGroupDepth bounds every recursive traversal over the parent-id
// edges. Cycles are rejected at write time, but a bounded CTE keeps
// reads terminating even if bad data slips in some other way.
const maxGroupDepth = 32

type GroupStore struct {
	pool *pgxpool.Pool
}

func NewGroupStore(pool *pgxpool.Pool) *GroupStore {
	return &GroupStore{pool: pool}
}

func (s *GroupStore) Create(ctx context.Context, name string, parentID *int64) (*models.Group, error) {
	if parentID != nil {
		if _, err := s.GetByID(ctx, *parentID); err != nil {
			return nil, err
		}
	}
	var g models.Group
	err := s.pool.QueryRow(ctx,
		`INSERT INTO groups (name, parent_id) VALUES ($1, $2) RETURNING id, name, parent_id`,
		name, parentID).Scan(&g.ID, &g.Name, &g.ParentID)
	if err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	return &g, nil
}

func (s *GroupStore) GetByID(ctx context.Context, id int64) (*models.Group, error) {
	var g models.Group
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, parent_id FROM groups WHERE id = $1`, id).Scan(&g.ID, &g.Name, &g.ParentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get group: %w", err)
	}
	return &g, nil
}

// Children returns roots for a nil parent, otherwise one level of
// direct children. Callers wanting a deep tree walk level by level.
func (s *GroupStore) Children(ctx context.Context, parentID *int64) ([]models.Group, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if parentID == nil {
		rows, err = s.pool.Query(ctx,
			`SELECT id, name, parent_id FROM groups WHERE parent_id IS NULL ORDER BY id`)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT id, name, parent_id FROM groups WHERE parent_id = $1 ORDER BY id`, *parentID)
	}
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()
	return collectGroups(rows)
}

func (s *GroupStore) Descendants(ctx context.Context, id int64) ([]models.Group, error) {
	if _, err := s.GetByID(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		WITH RECURSIVE sub AS (
			SELECT id, name, parent_id, 0 AS depth FROM groups WHERE id = $1
			UNION ALL
			SELECT g.id, g.name, g.parent_id, sub.depth + 1
			FROM groups g JOIN sub ON g.parent_id = sub.id
			WHERE sub.depth < $2
		)
		SELECT DISTINCT ON (id) id, name, parent_id FROM sub ORDER BY id`, id, maxGroupDepth)
	if err != nil {
		return nil, fmt.Errorf("group descendants: %w", err)
	}
	defer rows.Close()
	return collectGroups(rows)
}

// DescendantIDs expands a group membership set to its full downward
// closure: the groups themselves plus every transitive child. A user
// assigned to a parent sees documents filed under any descendant, but
// never the reverse.
func (s *GroupStore) DescendantIDs(ctx context.Context, rootIDs []int64) ([]int64, error) {
	if len(rootIDs) == 0 {
		return []int64{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		WITH RECURSIVE sub AS (
			SELECT id, 0 AS depth FROM groups WHERE id = ANY($1)
			UNION ALL
			SELECT g.id, sub.depth + 1
			FROM groups g JOIN sub ON g.parent_id = sub.id
			WHERE sub.depth < $2
		)
		SELECT DISTINCT id FROM sub ORDER BY id`, rootIDs, maxGroupDepth)
	if err != nil {
		return nil, fmt.Errorf("group closure: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0, len(rootIDs))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan group id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group closure: %w", err)
	}
	return ids, nil
}

func (s *GroupStore) Update(ctx context.Context, id int64, name string, parentID *int64) error {
	// Reparenting into the group's own subtree (or onto itself) would
	// close a cycle; rejected before the write.
	if parentID != nil {
		if *parentID == id {
			return repository.ErrGroupCycle
		}
		inSubtree, err := s.isDescendant(ctx, id, *parentID)
		if err != nil {
			return err
		}
		if inSubtree {
			return repository.ErrGroupCycle
		}
		if _, err := s.GetByID(ctx, *parentID); err != nil {
			return err
		}
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE groups SET name = $2, parent_id = $3 WHERE id = $1`, id, name, parentID)
	if err != nil {
		return fmt.Errorf("update group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *GroupStore) Delete(ctx context.Context, id int64) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var inUse bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM groups WHERE parent_id = $1)
			    OR EXISTS (SELECT 1 FROM user_groups WHERE group_id = $1)
			    OR EXISTS (SELECT 1 FROM documents WHERE group_id = $1)`, id).Scan(&inUse)
		if err != nil {
			return fmt.Errorf("check group usage: %w", err)
		}
		if inUse {
			return repository.ErrGroupNotEmpty
		}

		tag, err := tx.Exec(ctx, `DELETE FROM groups WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete group: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
}

// isDescendant reports whether candidate lies in the subtree rooted at
// root (excluding root itself).
func (s *GroupStore) isDescendant(ctx context.Context, root, candidate int64) (bool, error) {
	var found bool
	err := s.pool.QueryRow(ctx, `
		WITH RECURSIVE sub AS (
			SELECT id, 0 AS depth FROM groups WHERE parent_id = $1
			UNION ALL
			SELECT g.id, sub.depth + 1
			FROM groups g JOIN sub ON g.parent_id = sub.id
			WHERE sub.depth < $3
		)
		SELECT EXISTS (SELECT 1 FROM sub WHERE id = $2)`, root, candidate, maxGroupDepth).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("check subtree: %w", err)
	}
	return found, nil
}

func collectGroups(rows pgx.Rows) ([]models.Group, error) {
	groups := make([]models.Group, 0)
	for rows.Next() {
		var g models.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.ParentID); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return groups, nil
}
