package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/calmtunes/chat-service/internal/domain"
	"github.com/calmtunes/chat-service/internal/events"
	"github.com/calmtunes/chat-service/internal/repository"
	apperrors "github.com/calmtunes/chat-service/pkg/util"
)

const defaultNotificationLimit = 20
const maxNotificationLimit = 100

// NotificationService persists notification records as side effects of
// domain events. Creation is best effort: a failed insert is logged and
// swallowed so the triggering operation never fails on its account. It is
// the one component permitted to fail silently.
type NotificationService struct {
	notifications repository.NotificationRepository
	dispatcher    events.Dispatcher
	logger        *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(notifications repository.NotificationRepository, dispatcher events.Dispatcher, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		dispatcher:    dispatcher,
		logger:        logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventConversationStarted, n.handleConversationStarted)
	n.dispatcher.Subscribe(events.EventConversationClosed, n.handleConversationClosed)
	n.dispatcher.Subscribe(events.EventMessageSent, n.handleMessageSent)
}

// Notify inserts a notification row, never propagating failure.
func (n *NotificationService) Notify(ctx context.Context, userID string, typ domain.NotificationType, title, body string, payload map[string]any) {
	record := &domain.Notification{
		UserID:  userID,
		Type:    typ,
		Title:   title,
		Body:    body,
		Payload: payload,
	}
	if err := n.notifications.Create(ctx, record); err != nil {
		n.logger.Warn("notification insert failed",
			zap.String("user_id", userID),
			zap.String("type", string(typ)),
			zap.Error(err))
	}
}

// ListFor returns the user's notifications, most recent first.
func (n *NotificationService) ListFor(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}
	list, err := n.notifications.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

// MarkRead flips the read flag. The update is scoped to the owner, so a
// notification belonging to another user is a no-op rather than an error.
func (n *NotificationService) MarkRead(ctx context.Context, notificationID, userID string) error {
	if err := n.notifications.MarkRead(ctx, notificationID, userID); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

func (n *NotificationService) handleConversationStarted(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ConversationStartedPayload)
	if !ok {
		return nil
	}
	meta := map[string]any{"conversation_id": event.ConversationID, "kind": payload.Kind}

	counterpartType := domain.NotificationNewConversation
	initiatorType := domain.NotificationConversationStarted
	if payload.Appointment {
		counterpartType = domain.NotificationAppointment
		initiatorType = domain.NotificationAppointment
	}

	n.Notify(ctx, payload.CounterpartID, counterpartType,
		"New conversation", "Someone started a conversation with you.", meta)
	n.Notify(ctx, payload.InitiatorID, initiatorType,
		"Conversation started", "Your conversation is ready.", meta)
	return nil
}

func (n *NotificationService) handleConversationClosed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ConversationClosedPayload)
	if !ok {
		return nil
	}
	meta := map[string]any{"conversation_id": event.ConversationID}
	if payload.Reason != "" {
		meta["reason"] = payload.Reason
	}
	for _, participant := range payload.Participants {
		if participant == payload.ClosedBy {
			continue
		}
		n.Notify(ctx, participant, domain.NotificationConversationClosed,
			"Conversation closed", "A conversation you were part of was closed.", meta)
	}
	return nil
}

func (n *NotificationService) handleMessageSent(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.MessageSentPayload)
	if !ok {
		return nil
	}
	// system messages (welcome seeds, closure markers) ride their own
	// lifecycle notifications
	if payload.Kind == domain.MessageKindSystem {
		return nil
	}
	if payload.RecipientID == "" {
		return nil
	}
	n.Notify(ctx, payload.RecipientID, domain.NotificationNewMessage,
		"New message", payload.BodyPreview, map[string]any{
			"conversation_id": event.ConversationID,
			"message_id":      payload.MessageID,
			"sender_id":       payload.SenderID,
		})
	return nil
}
