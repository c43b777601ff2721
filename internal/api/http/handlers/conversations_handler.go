package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/calmtunes/chat-service/internal/api/dto"
	"github.com/calmtunes/chat-service/internal/auth"
	"github.com/calmtunes/chat-service/internal/domain"
	"github.com/calmtunes/chat-service/internal/service"
	apperrors "github.com/calmtunes/chat-service/pkg/util"
)

// ConversationsHandler manages conversation and message endpoints.
type ConversationsHandler struct {
	conversations *service.ConversationService
	messages      *service.MessageService
}

// NewConversationsHandler constructs handler.
func NewConversationsHandler(conversations *service.ConversationService, messages *service.MessageService) *ConversationsHandler {
	return &ConversationsHandler{conversations: conversations, messages: messages}
}

// Start POST /conversations.
func (h *ConversationsHandler) Start(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.StartConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.CounterpartID == "" {
		return apperrors.NewValidationError("counterpart_id required", nil)
	}
	kind := domain.ConversationKind(strings.ToUpper(req.Kind))
	if req.Kind == "" {
		kind = domain.KindRegular
	}

	conv, err := h.conversations.Start(c.Context(), principal.User.ID, principal.Role(), req.CounterpartID, kind)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data": fiber.Map{"conversation_id": conv.ID, "status": string(conv.Status)},
	})
}

// List GET /conversations.
func (h *ConversationsHandler) List(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	summaries, err := h.conversations.ListFor(c.Context(), principal.User.ID)
	if err != nil {
		return err
	}
	items := make([]dto.ConversationSummary, 0, len(summaries))
	for i := range summaries {
		items = append(items, conversationSummary(&summaries[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Close POST /conversations/:id/close.
func (h *ConversationsHandler) Close(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CloseConversationRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.conversations.Close(c.Context(), c.Params("id"), principal.User.ID, req.Reason); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"status": "CLOSED"}})
}

// SendMessage POST /conversations/:id/messages.
func (h *ConversationsHandler) SendMessage(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	kind := domain.MessageKind(strings.ToUpper(req.Kind))
	if req.Kind == "" {
		kind = domain.MessageKindText
	}

	msg, err := h.messages.Send(c.Context(), c.Params("id"), principal.User.ID, req.Content, kind)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": messageResponse(msg)})
}

// Messages GET /conversations/:id/messages. Fetching marks the other
// party's messages as read.
func (h *ConversationsHandler) Messages(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	limit := queryInt(c, "limit", 0)
	offset := queryInt(c, "offset", 0)

	msgs, err := h.messages.Fetch(c.Context(), c.Params("id"), principal.User.ID, limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.MessageResponse, 0, len(msgs))
	for i := range msgs {
		items = append(items, messageResponse(&msgs[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func conversationSummary(s *domain.ConversationSummary) dto.ConversationSummary {
	out := dto.ConversationSummary{
		ID:     s.Conversation.ID,
		Kind:   string(s.Conversation.Kind),
		Status: string(s.Conversation.Status),
		Participants: []dto.ParticipantView{
			{ID: s.Conversation.ParticipantLow.ID, Role: string(s.Conversation.ParticipantLow.Role)},
			{ID: s.Conversation.ParticipantHigh.ID, Role: string(s.Conversation.ParticipantHigh.Role)},
		},
		UnreadCount: s.UnreadCount,
		CreatedAt:   s.Conversation.CreatedAt,
		UpdatedAt:   s.Conversation.UpdatedAt,
	}
	if s.LastMessage != nil {
		last := messageResponse(s.LastMessage)
		out.LastMessage = &last
	}
	return out
}

func messageResponse(msg *domain.Message) dto.MessageResponse {
	return dto.MessageResponse{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Kind:           string(msg.Kind),
		Content:        msg.Body,
		Read:           msg.Read,
		CreatedAt:      msg.CreatedAt,
	}
}

func queryInt(c *fiber.Ctx, key string, fallback int) int {
	val := c.Query(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}
