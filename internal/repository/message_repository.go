package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calmtunes/chat-service/internal/domain"
)

// MessageRepository manages per-conversation message logs.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]domain.Message, error)
	Latest(ctx context.Context, conversationID string) (*domain.Message, error)
	MarkReadExcept(ctx context.Context, conversationID, readerID string) (int64, error)
	CountUnread(ctx context.Context, conversationID, userID string) (int, error)
}

type messageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository builds repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pool: pool}
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO messages (conversation_id, sender_id, kind, body)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		msg.ConversationID,
		msg.SenderID,
		msg.Kind,
		msg.Body,
	).Scan(&msg.ID, &msg.CreatedAt)
}

// ListByConversation orders by insertion time with id as a deterministic
// tie-breaker for messages landing within the same clock tick.
func (r *messageRepository) ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]domain.Message, error) {
	const query = `
        SELECT id, conversation_id, sender_id, kind, body, is_read, created_at
        FROM messages WHERE conversation_id=$1
        ORDER BY created_at ASC, id ASC
        LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := scanMessage(rows, &msg); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

// Latest returns the most recent message, or nil when the log is empty.
func (r *messageRepository) Latest(ctx context.Context, conversationID string) (*domain.Message, error) {
	const query = `
        SELECT id, conversation_id, sender_id, kind, body, is_read, created_at
        FROM messages WHERE conversation_id=$1
        ORDER BY created_at DESC, id DESC
        LIMIT 1`
	var msg domain.Message
	err := scanMessage(r.pool.QueryRow(ctx, query, conversationID), &msg)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkReadExcept batch-marks every unread message not sent by readerID.
func (r *messageRepository) MarkReadExcept(ctx context.Context, conversationID, readerID string) (int64, error) {
	const query = `
        UPDATE messages SET is_read=TRUE
        WHERE conversation_id=$1 AND sender_id<>$2 AND is_read=FALSE`
	cmd, err := r.pool.Exec(ctx, query, conversationID, readerID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *messageRepository) CountUnread(ctx context.Context, conversationID, userID string) (int, error) {
	const query = `
        SELECT COUNT(*) FROM messages
        WHERE conversation_id=$1 AND sender_id<>$2 AND is_read=FALSE`
	var count int
	if err := r.pool.QueryRow(ctx, query, conversationID, userID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func scanMessage(row pgx.Row, msg *domain.Message) error {
	return row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.Kind,
		&msg.Body,
		&msg.Read,
		&msg.CreatedAt,
	)
}
