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

type DeleteRequestStore struct {
	pool *pgxpool.Pool
}

func NewDeleteRequestStore(pool *pgxpool.Pool) *DeleteRequestStore {
	return &DeleteRequestStore{pool: pool}
}

const deleteRequestColumns = `id, document_id, requester_id, status, created_at`

func scanDeleteRequest(row pgx.Row) (*models.DeleteRequest, error) {
	var dr models.DeleteRequest
	err := row.Scan(&dr.ID, &dr.DocumentID, &dr.RequesterID, &dr.Status, &dr.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan delete request: %w", err)
	}
	return &dr, nil
}

func (s *DeleteRequestStore) Create(ctx context.Context, documentID, requesterID int64) (*models.DeleteRequest, error) {
	// The partial unique index on (document_id, requester_id) WHERE
	// status = 'pending' closes the check-then-insert race: the second
	// concurrent insert fails here rather than creating a second row.
	dr, err := scanDeleteRequest(s.pool.QueryRow(ctx, `
		INSERT INTO delete_requests (document_id, requester_id)
		VALUES ($1, $2)
		RETURNING `+deleteRequestColumns, documentID, requesterID))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, repository.ErrDuplicatePending
		}
		return nil, err
	}
	return dr, nil
}

func (s *DeleteRequestStore) GetByID(ctx context.Context, id int64) (*models.DeleteRequest, error) {
	return scanDeleteRequest(s.pool.QueryRow(ctx,
		`SELECT `+deleteRequestColumns+` FROM delete_requests WHERE id = $1`, id))
}

func (s *DeleteRequestStore) ListPending(ctx context.Context, page, limit int) ([]models.DeleteRequest, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM delete_requests WHERE status = $1`,
		models.DeleteRequestPending).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count delete requests: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+deleteRequestColumns+`
		FROM delete_requests
		WHERE status = $1
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3`,
		models.DeleteRequestPending, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list delete requests: %w", err)
	}
	defer rows.Close()

	reqs := make([]models.DeleteRequest, 0)
	for rows.Next() {
		var dr models.DeleteRequest
		if err := rows.Scan(&dr.ID, &dr.DocumentID, &dr.RequesterID, &dr.Status, &dr.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan delete request: %w", err)
		}
		reqs = append(reqs, dr)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate delete requests: %w", err)
	}
	return reqs, total, nil
}

// Approve transitions pending -> approved and removes the document row
// in one transaction. The deleted document is returned so the caller
// can remove the blob after commit. Only pending requests qualify;
// anything else reports ErrNotFound.
func (s *DeleteRequestStore) Approve(ctx context.Context, id int64) (*models.Document, error) {
	var doc *models.Document
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var documentID int64
		err := tx.QueryRow(ctx, `
			UPDATE delete_requests SET status = $2
			WHERE id = $1 AND status = $3
			RETURNING document_id`,
			id, models.DeleteRequestApproved, models.DeleteRequestPending).Scan(&documentID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return repository.ErrNotFound
			}
			return fmt.Errorf("approve delete request: %w", err)
		}

		d, err := scanDocument(tx.QueryRow(ctx,
			`SELECT `+documentColumns+` FROM documents WHERE id = $1`, documentID))
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM documents WHERE id = $1`, documentID); err != nil {
			return fmt.Errorf("delete approved document: %w", err)
		}
		// Other pending requests for the same document are now moot.
		if _, err := tx.Exec(ctx, `
			DELETE FROM delete_requests WHERE document_id = $1 AND status = $2`,
			documentID, models.DeleteRequestPending); err != nil {
			return fmt.Errorf("clear pending requests: %w", err)
		}
		doc = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *DeleteRequestStore) Reject(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE delete_requests SET status = $2
		WHERE id = $1 AND status = $3`,
		id, models.DeleteRequestRejected, models.DeleteRequestPending)
	if err != nil {
		return fmt.Errorf("reject delete request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
