package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calmtunes/chat-service/internal/domain"
)

// ErrDuplicateActiveConversation signals the partial unique index rejected
// a second active conversation for the same pair and kind. Callers recover
// by re-fetching the winning row.
var ErrDuplicateActiveConversation = errors.New("active conversation already exists for pair")

// ConversationRepository encapsulates conversation persistence.
type ConversationRepository interface {
	Create(ctx context.Context, conv *domain.Conversation) error
	GetByID(ctx context.Context, id string) (*domain.Conversation, error)
	GetActiveByPair(ctx context.Context, lowID, highID string, kind domain.ConversationKind) (*domain.Conversation, error)
	Close(ctx context.Context, id, closedBy, reason string, closedAt time.Time) error
	Touch(ctx context.Context, id string) error
	ListActiveForUser(ctx context.Context, userID string) ([]domain.Conversation, error)
}

type conversationRepository struct {
	pool *pgxpool.Pool
}

// NewConversationRepository instantiates repository.
func NewConversationRepository(pool *pgxpool.Pool) ConversationRepository {
	return &conversationRepository{pool: pool}
}

const conversationColumns = `id, kind, participant_low_id, participant_low_role,
       participant_high_id, participant_high_role, status,
       created_at, updated_at, closed_at, closed_by, closure_reason`

func (r *conversationRepository) Create(ctx context.Context, conv *domain.Conversation) error {
	const query = `
        INSERT INTO conversations (kind, participant_low_id, participant_low_role,
            participant_high_id, participant_high_role, status)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		conv.Kind,
		conv.ParticipantLow.ID,
		conv.ParticipantLow.Role,
		conv.ParticipantHigh.ID,
		conv.ParticipantHigh.Role,
		conv.Status,
	).Scan(&conv.ID, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateActiveConversation
		}
		return err
	}
	return nil
}

func (r *conversationRepository) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *conversationRepository) GetActiveByPair(ctx context.Context, lowID, highID string, kind domain.ConversationKind) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + `
        FROM conversations
        WHERE participant_low_id=$1 AND participant_high_id=$2 AND kind=$3 AND status='ACTIVE'`
	return r.fetchSingle(ctx, query, lowID, highID, kind)
}

// Close transitions an active conversation to closed. Returns pgx.ErrNoRows
// when the row is missing or already closed; the caller distinguishes the two.
func (r *conversationRepository) Close(ctx context.Context, id, closedBy, reason string, closedAt time.Time) error {
	const query = `
        UPDATE conversations
        SET status='CLOSED', closed_at=$2, closed_by=$3, closure_reason=$4, updated_at=NOW()
        WHERE id=$1 AND status='ACTIVE'`
	cmd, err := r.pool.Exec(ctx, query, id, closedAt, closedBy, reason)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Touch bumps updated_at, used when a message lands in the conversation.
func (r *conversationRepository) Touch(ctx context.Context, id string) error {
	const query = `UPDATE conversations SET updated_at=NOW() WHERE id=$1`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *conversationRepository) ListActiveForUser(ctx context.Context, userID string) ([]domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + `
        FROM conversations
        WHERE status='ACTIVE' AND (participant_low_id=$1 OR participant_high_id=$1)
        ORDER BY updated_at DESC, id ASC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConversations(rows)
}

func (r *conversationRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&conv.ID,
		&conv.Kind,
		&conv.ParticipantLow.ID,
		&conv.ParticipantLow.Role,
		&conv.ParticipantHigh.ID,
		&conv.ParticipantHigh.Role,
		&conv.Status,
		&conv.CreatedAt,
		&conv.UpdatedAt,
		&conv.ClosedAt,
		&conv.ClosedBy,
		&conv.ClosureReason,
	); err != nil {
		return nil, err
	}
	return &conv, nil
}

func scanConversations(rows pgx.Rows) ([]domain.Conversation, error) {
	var result []domain.Conversation
	for rows.Next() {
		var conv domain.Conversation
		if err := rows.Scan(
			&conv.ID,
			&conv.Kind,
			&conv.ParticipantLow.ID,
			&conv.ParticipantLow.Role,
			&conv.ParticipantHigh.ID,
			&conv.ParticipantHigh.Role,
			&conv.Status,
			&conv.CreatedAt,
			&conv.UpdatedAt,
			&conv.ClosedAt,
			&conv.ClosedBy,
			&conv.ClosureReason,
		); err != nil {
			return nil, err
		}
		result = append(result, conv)
	}
	return result, rows.Err()
}
