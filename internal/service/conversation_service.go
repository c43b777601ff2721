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

// ConversationService owns conversation lifecycle: create-or-get,
// closure and inbox listings.
type ConversationService struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	users         repository.UserRepository
	dispatcher    events.Dispatcher
	welcome       string
}

// ConversationDependencies bundles repositories for the service.
type ConversationDependencies struct {
	ConversationRepo repository.ConversationRepository
	MessageRepo      repository.MessageRepository
	UserRepo         repository.UserRepository
	Dispatcher       events.Dispatcher
}

// NewConversationService constructs the service.
func NewConversationService(cfg config.ChatConfig, deps ConversationDependencies) *ConversationService {
	return &ConversationService{
		conversations: deps.ConversationRepo,
		messages:      deps.MessageRepo,
		users:         deps.UserRepo,
		dispatcher:    deps.Dispatcher,
		welcome:       cfg.WelcomeMessage,
	}
}

// Start resolves a start request to the single active conversation for the
// unordered pair and kind. Calling it twice for the same pair is idempotent.
// Creation races are settled by the store's unique constraint: a losing
// insert re-fetches and returns the winning row.
func (s *ConversationService) Start(ctx context.Context, initiatorID string, initiatorRole domain.Role, counterpartID string, kind domain.ConversationKind) (*domain.Conversation, error) {
	return s.start(ctx, initiatorID, initiatorRole, counterpartID, kind, false)
}

// EnsureForAppointment is the entry point the scheduling collaborator calls
// when an appointment between a patient and therapist is confirmed.
func (s *ConversationService) EnsureForAppointment(ctx context.Context, patientID, therapistID string) (*domain.Conversation, error) {
	return s.start(ctx, therapistID, domain.RoleTherapist, patientID, domain.KindRegular, true)
}

func (s *ConversationService) start(ctx context.Context, initiatorID string, initiatorRole domain.Role, counterpartID string, kind domain.ConversationKind, appointment bool) (*domain.Conversation, error) {
	if !kind.Valid() {
		return nil, apperrors.NewValidationError("unsupported conversation kind", map[string]any{"kind": kind})
	}
	if !initiatorRole.Valid() {
		return nil, apperrors.NewValidationError("invalid initiator role", nil)
	}
	if initiatorID == counterpartID {
		return nil, apperrors.NewValidationError("cannot start a conversation with yourself", nil)
	}

	counterpart, err := s.users.GetByID(ctx, counterpartID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("counterpart", map[string]any{"id": counterpartID})
		}
		return nil, apperrors.MapError(err)
	}
	if err := validatePair(kind, initiatorRole, counterpart); err != nil {
		return nil, err
	}

	low, high := domain.NormalizePair(
		domain.Participant{ID: initiatorID, Role: initiatorRole},
		domain.Participant{ID: counterpart.ID, Role: counterpart.Role},
	)

	if existing, err := s.conversations.GetActiveByPair(ctx, low.ID, high.ID, kind); err == nil {
		return existing, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	conv := &domain.Conversation{
		Kind:            kind,
		ParticipantLow:  low,
		ParticipantHigh: high,
		Status:          domain.ConversationStatusActive,
	}
	if err := s.conversations.Create(ctx, conv); err != nil {
		if errors.Is(err, repository.ErrDuplicateActiveConversation) {
			winner, fetchErr := s.conversations.GetActiveByPair(ctx, low.ID, high.ID, kind)
			if fetchErr != nil {
				return nil, apperrors.MapError(fetchErr)
			}
			return winner, nil
		}
		return nil, apperrors.MapError(err)
	}

	s.seedOpeningMessage(ctx, conv, initiatorID, counterpart, appointment)

	s.publishEvent(ctx, events.Event{
		Type:           events.EventConversationStarted,
		ConversationID: conv.ID,
		ActorID:        initiatorID,
		Payload: events.ConversationStartedPayload{
			Kind:          kind,
			InitiatorID:   initiatorID,
			CounterpartID: counterpart.ID,
			Appointment:   appointment,
		},
	})
	return conv, nil
}

// seedOpeningMessage runs once per created conversation, never on the
// idempotent return path.
func (s *ConversationService) seedOpeningMessage(ctx context.Context, conv *domain.Conversation, initiatorID string, counterpart *domain.User, appointment bool) {
	var body, sender string
	switch {
	case appointment:
		body = "Your appointment was confirmed. You can message each other here."
		sender = initiatorID
	case conv.Kind == domain.KindRegular && counterpart.Role == domain.RoleTherapist:
		// patient-initiated: welcome attributed to the therapist
		body = s.welcome
		sender = counterpart.ID
	default:
		return
	}

	msg := &domain.Message{
		ConversationID: conv.ID,
		SenderID:       sender,
		Kind:           domain.MessageKindSystem,
		Body:           body,
	}
	// seeding is best effort; the conversation stands without it
	_ = s.messages.Create(ctx, msg)
}

// Close transitions an active conversation to its terminal state and appends
// a system message recording the closure. Closing an already-closed
// conversation is an explicit INVALID_STATE failure, not a silent no-op.
func (s *ConversationService) Close(ctx context.Context, conversationID, closedByID, reason string) error {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("conversation", map[string]any{"id": conversationID})
		}
		return apperrors.MapError(err)
	}

	if !conv.HasParticipant(closedByID) {
		closer, err := s.users.GetByID(ctx, closedByID)
		if err != nil || closer.Role != domain.RoleAdmin {
			return apperrors.NewForbidden("only participants or admins may close a conversation")
		}
	}
	if conv.Status != domain.ConversationStatusActive {
		return apperrors.NewInvalidState("conversation already closed", map[string]any{"id": conversationID})
	}

	if err := s.conversations.Close(ctx, conversationID, closedByID, reason, time.Now()); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// lost a close race
			return apperrors.NewInvalidState("conversation already closed", map[string]any{"id": conversationID})
		}
		return apperrors.MapError(err)
	}

	body := "Conversation closed."
	if strings.TrimSpace(reason) != "" {
		body = "Conversation closed: " + strings.TrimSpace(reason)
	}
	_ = s.messages.Create(ctx, &domain.Message{
		ConversationID: conversationID,
		SenderID:       closedByID,
		Kind:           domain.MessageKindSystem,
		Body:           body,
	})

	s.publishEvent(ctx, events.Event{
		Type:           events.EventConversationClosed,
		ConversationID: conversationID,
		ActorID:        closedByID,
		Payload: events.ConversationClosedPayload{
			ClosedBy:     closedByID,
			Reason:       reason,
			Participants: []string{conv.ParticipantLow.ID, conv.ParticipantHigh.ID},
		},
	})
	return nil
}

// ListFor returns the user's active conversations annotated with the latest
// message and unread count, most recent activity first.
func (s *ConversationService) ListFor(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	convs, err := s.conversations.ListActiveForUser(ctx, userID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	summaries := make([]domain.ConversationSummary, 0, len(convs))
	for i := range convs {
		last, err := s.messages.Latest(ctx, convs[i].ID)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		unread, err := s.messages.CountUnread(ctx, convs[i].ID, userID)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		summaries = append(summaries, domain.ConversationSummary{
			Conversation: convs[i],
			LastMessage:  last,
			UnreadCount:  unread,
		})
	}
	return summaries, nil
}

// GetForParticipant loads a conversation, enforcing membership.
func (s *ConversationService) GetForParticipant(ctx context.Context, conversationID, userID string) (*domain.Conversation, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("conversation", map[string]any{"id": conversationID})
		}
		return nil, apperrors.MapError(err)
	}
	if !conv.HasParticipant(userID) {
		return nil, apperrors.NewForbidden("not a participant of this conversation")
	}
	return conv, nil
}

func validatePair(kind domain.ConversationKind, initiatorRole domain.Role, counterpart *domain.User) error {
	switch kind {
	case domain.KindRegular:
		switch initiatorRole {
		case domain.RolePatient:
			if counterpart.Role != domain.RoleTherapist || !counterpart.Approved {
				return apperrors.NewNotFound("approved therapist", map[string]any{"id": counterpart.ID})
			}
		case domain.RoleTherapist:
			if counterpart.Role != domain.RolePatient {
				return apperrors.NewNotFound("patient", map[string]any{"id": counterpart.ID})
			}
		default:
			return apperrors.NewValidationError("role cannot start a regular conversation", map[string]any{"role": initiatorRole})
		}
	case domain.KindAdminSupport:
		if initiatorRole == domain.RoleAdmin {
			if counterpart.Role == domain.RoleAdmin {
				return apperrors.NewNotFound("support counterpart", map[string]any{"id": counterpart.ID})
			}
		} else if counterpart.Role != domain.RoleAdmin {
			return apperrors.NewNotFound("admin", map[string]any{"id": counterpart.ID})
		}
	}
	return nil
}

func (s *ConversationService) publishEvent(ctx context.Context, event events.Event) {
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
