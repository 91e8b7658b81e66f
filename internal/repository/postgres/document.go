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

type DocumentStore struct {
	pool *pgxpool.Pool
}

func NewDocumentStore(pool *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{pool: pool}
}

// uploader_id goes NULL when the uploader is hard-deleted; scanned as 0.
const documentColumns = `id, title, group_id, COALESCE(uploader_id, 0), file_path, file_name, uploader_name, uploader_handle, group_name, created_at`

func scanDocument(row pgx.Row) (*models.Document, error) {
	var d models.Document
	err := row.Scan(&d.ID, &d.Title, &d.GroupID, &d.UploaderID, &d.FilePath, &d.FileName,
		&d.UploaderName, &d.UploaderHandle, &d.GroupName, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return &d, nil
}

func (s *DocumentStore) Create(ctx context.Context, d *models.Document) (*models.Document, error) {
	// Uploader and group names are snapshotted here on purpose; later
	// renames do not touch existing rows.
	return scanDocument(s.pool.QueryRow(ctx, `
		INSERT INTO documents (title, group_id, uploader_id, file_path, file_name,
		                       uploader_name, uploader_handle, group_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+documentColumns,
		d.Title, d.GroupID, d.UploaderID, d.FilePath, d.FileName,
		d.UploaderName, d.UploaderHandle, d.GroupName))
}

func (s *DocumentStore) GetByID(ctx context.Context, id int64) (*models.Document, error) {
	return scanDocument(s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
}

func (s *DocumentStore) List(ctx context.Context, filter repository.DocumentFilter) ([]models.Document, int, error) {
	where := "WHERE TRUE"
	args := []any{}
	argPos := 1

	// nil means no group restriction (admin view); an empty closure
	// matches nothing.
	if filter.GroupIDs != nil {
		where += fmt.Sprintf(" AND group_id = ANY($%d)", argPos)
		args = append(args, filter.GroupIDs)
		argPos++
	}
	if filter.Title != "" {
		where += fmt.Sprintf(" AND title ILIKE $%d", argPos)
		args = append(args, "%"+filter.Title+"%")
		argPos++
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM documents "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM documents %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		documentColumns, where, argPos, argPos+1)
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]models.Document, 0)
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.ID, &d.Title, &d.GroupID, &d.UploaderID, &d.FilePath, &d.FileName,
			&d.UploaderName, &d.UploaderHandle, &d.GroupName, &d.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, total, nil
}

func (s *DocumentStore) Update(ctx context.Context, id int64, title *string, groupID *int64, groupName *string, filePath, fileName *string) error {
	query := "UPDATE documents SET id = id"
	args := []any{}
	argPos := 1

	if title != nil {
		query += fmt.Sprintf(", title = $%d", argPos)
		args = append(args, *title)
		argPos++
	}
	if groupID != nil {
		query += fmt.Sprintf(", group_id = $%d", argPos)
		args = append(args, *groupID)
		argPos++
	}
	if groupName != nil {
		query += fmt.Sprintf(", group_name = $%d", argPos)
		args = append(args, *groupName)
		argPos++
	}
	if filePath != nil {
		query += fmt.Sprintf(", file_path = $%d", argPos)
		args = append(args, *filePath)
		argPos++
	}
	if fileName != nil {
		query += fmt.Sprintf(", file_name = $%d", argPos)
		args = append(args, *fileName)
		argPos++
	}
	query += fmt.Sprintf(" WHERE id = $%d", argPos)
	args = append(args, id)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *DocumentStore) Delete(ctx context.Context, id int64) error {
	// Pending delete requests for the document are moot once it is
	// gone; resolved ones stay as history.
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM delete_requests WHERE document_id = $1 AND status = 'pending'`, id); err != nil {
			return fmt.Errorf("clear pending requests: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete document: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
}
