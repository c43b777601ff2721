package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calmtunes/chat-service/internal/domain"
)

// NotificationRepository persists per-user notification records.
type NotificationRepository interface {
	Create(ctx context.Context, notification *domain.Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
}

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository builds repository.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

func (r *notificationRepository) Create(ctx context.Context, notification *domain.Notification) error {
	const query = `
        INSERT INTO notifications (user_id, type, title, body, payload)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	payload := notification.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	return r.pool.QueryRow(ctx, query,
		notification.UserID,
		notification.Type,
		notification.Title,
		notification.Body,
		payload,
	).Scan(&notification.ID, &notification.CreatedAt)
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	const query = `
        SELECT id, user_id, type, title, body, payload, is_read, created_at
        FROM notifications WHERE user_id=$1
        ORDER BY created_at DESC, id DESC
        LIMIT $2`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(
			&n.ID,
			&n.UserID,
			&n.Type,
			&n.Title,
			&n.Body,
			&n.Payload,
			&n.IsRead,
			&n.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

// MarkRead is scoped to the owner; a mismatched user silently affects no rows.
func (r *notificationRepository) MarkRead(ctx context.Context, id, userID string) error {
	const query = `UPDATE notifications SET is_read=TRUE WHERE id=$1 AND user_id=$2`
	_, err := r.pool.Exec(ctx, query, id, userID)
	return err
}
