package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/calmtunes/chat-service/internal/config"
	"github.com/calmtunes/chat-service/internal/domain"
	"github.com/calmtunes/chat-service/internal/events"
	"github.com/calmtunes/chat-service/internal/repository"
	apperrors "github.com/calmtunes/chat-service/pkg/util"
)

// previewLength bounds the content excerpt carried by notifications.
const previewLength = 50

// MessageService is the append-only message log with read-state tracking.
type MessageService struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	dispatcher    events.Dispatcher
	pageSize      int
	maxPageSize   int
}

// MessageDependencies bundles repositories for the service.
type MessageDependencies struct {
	ConversationRepo repository.ConversationRepository
	MessageRepo      repository.MessageRepository
	Dispatcher       events.Dispatcher
}

// NewMessageService constructs the service.
func NewMessageService(cfg config.ChatConfig, deps MessageDependencies) *MessageService {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	maxPageSize := cfg.MaxPageSize
	if maxPageSize < pageSize {
		maxPageSize = pageSize
	}
	return &MessageService{
		conversations: deps.ConversationRepo,
		messages:      deps.MessageRepo,
		dispatcher:    deps.Dispatcher,
		pageSize:      pageSize,
		maxPageSize:   maxPageSize,
	}
}

// Send appends a message to an active conversation and bumps its activity
// timestamp. The message is durable regardless of who is listening; realtime
// delivery and notifications ride the published event.
func (s *MessageService) Send(ctx context.Context, conversationID, senderID, body string, kind domain.MessageKind) (*domain.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, apperrors.NewValidationError("message content is empty", nil)
	}
	if kind == "" {
		kind = domain.MessageKindText
	}
	if !kind.Valid() {
		return nil, apperrors.NewValidationError("unsupported message kind", map[string]any{"kind": kind})
	}

	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("conversation", map[string]any{"id": conversationID})
		}
		return nil, apperrors.MapError(err)
	}
	if !conv.HasParticipant(senderID) {
		return nil, apperrors.NewForbidden("not a participant of this conversation")
	}
	if conv.Status != domain.ConversationStatusActive {
		return nil, apperrors.NewInvalidState("conversation is closed", map[string]any{"id": conversationID})
	}

	msg := &domain.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Kind:           kind,
		Body:           body,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := s.conversations.Touch(ctx, conversationID); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	counterpart, _ := conv.Counterpart(senderID)
	s.publishEvent(ctx, events.Event{
		Type:           events.EventMessageSent,
		ConversationID: conversationID,
		ActorID:        senderID,
		Payload: events.MessageSentPayload{
			MessageID:   msg.ID,
			SenderID:    senderID,
			RecipientID: counterpart.ID,
			Kind:        msg.Kind,
			Body:        msg.Body,
			BodyPreview: messagePreview(msg.Body, previewLength),
			CreatedAt:   msg.CreatedAt,
		},
	})
	return msg, nil
}

// Fetch returns one page of the conversation in insertion order. As a side
// effect it batch-marks all messages not sent by the requester as read:
// read-state is tied to fetching, not to an explicit acknowledgment. Closed
// conversations remain readable.
func (s *MessageService) Fetch(ctx context.Context, conversationID, requesterID string, limit, offset int) ([]domain.Message, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("conversation", map[string]any{"id": conversationID})
		}
		return nil, apperrors.MapError(err)
	}
	if !conv.HasParticipant(requesterID) {
		return nil, apperrors.NewForbidden("not a participant of this conversation")
	}

	if limit <= 0 {
		limit = s.pageSize
	}
	if limit > s.maxPageSize {
		limit = s.maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	msgs, err := s.messages.ListByConversation(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if _, err := s.messages.MarkReadExcept(ctx, conversationID, requesterID); err != nil {
		return nil, apperrors.MapError(err)
	}
	// mirror the batch update on the returned page
	for i := range msgs {
		if msgs[i].SenderID != requesterID {
			msgs[i].Read = true
		}
	}
	return msgs, nil
}

// UnreadCount counts unread messages in the conversation not sent by userID.
func (s *MessageService) UnreadCount(ctx context.Context, conversationID, userID string) (int, error) {
	count, err := s.messages.CountUnread(ctx, conversationID, userID)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	return count, nil
}

func (s *MessageService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

// messagePreview truncates on rune boundaries so multi-byte text stays
// valid UTF-8.
func messagePreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
