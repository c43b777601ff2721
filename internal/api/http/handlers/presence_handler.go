package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/calmtunes/chat-service/internal/realtime"
)

// PresenceHandler exposes advisory online/offline state.
type PresenceHandler struct {
	tracker *realtime.PresenceTracker
}

// NewPresenceHandler constructs handler.
func NewPresenceHandler(tracker *realtime.PresenceTracker) *PresenceHandler {
	return &PresenceHandler{tracker: tracker}
}

// Get GET /presence/:id.
func (h *PresenceHandler) Get(c *fiber.Ctx) error {
	userID := c.Params("id")
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"user_id": userID,
			"online":  h.tracker.Status(c.Context(), userID),
		},
	})
}
