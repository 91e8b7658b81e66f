package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meridianbank/backoffice/internal/db"
	"github.com/meridianbank/backoffice/internal/models"
	"github.com/meridianbank/backoffice/internal/repository"
)

type NotificationStore struct {
	pool *pgxpool.Pool
}

func NewNotificationStore(pool *pgxpool.Pool) *NotificationStore {
	return &NotificationStore{pool: pool}
}

// Broadcast stores the notification and fans it out to every active
// user-class identity in one transaction. The recipient set is fixed
// at send time; users created later never see it.
func (s *NotificationStore) Broadcast(ctx context.Context, title, body string) (*models.Notification, int, error) {
	var (
		n     models.Notification
		count int
	)
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO notifications (title, body)
			VALUES ($1, $2)
			RETURNING id, title, body, created_at`,
			title, body).Scan(&n.ID, &n.Title, &n.Body, &n.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO user_notifications (notification_id, user_id)
			SELECT $1, id FROM users WHERE role = $2 AND is_active = TRUE`,
			n.ID, models.RoleUser)
		if err != nil {
			return fmt.Errorf("fan out notification: %w", err)
		}
		count = int(tag.RowsAffected())
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return &n, count, nil
}

func (s *NotificationStore) ListForUser(ctx context.Context, userID int64, page, limit int) ([]models.UserNotification, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_notifications WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT n.id, n.title, n.body, n.created_at, un.is_read
		FROM user_notifications un
		JOIN notifications n ON n.id = un.notification_id
		WHERE un.user_id = $1
		ORDER BY n.created_at DESC, n.id DESC
		LIMIT $2 OFFSET $3`, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]models.UserNotification, 0)
	for rows.Next() {
		var un models.UserNotification
		if err := rows.Scan(&un.ID, &un.Title, &un.Body, &un.CreatedAt, &un.IsRead); err != nil {
			return nil, 0, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, un)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate notifications: %w", err)
	}
	return items, total, nil
}

func (s *NotificationStore) MarkRead(ctx context.Context, userID, notificationID int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE user_notifications SET is_read = TRUE
		WHERE user_id = $1 AND notification_id = $2`, userID, notificationID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *NotificationStore) UnreadCount(ctx context.Context, userID int64) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM user_notifications
		WHERE user_id = $1 AND is_read = FALSE`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}
