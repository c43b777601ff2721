package events

import (
	"time"

	"github.com/calmtunes/chat-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventConversationStarted EventType = "conversation_started"
	EventConversationClosed  EventType = "conversation_closed"
	EventMessageSent         EventType = "message_sent"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID             string      `json:"id"`
	Type           EventType   `json:"type"`
	ConversationID string      `json:"conversation_id,omitempty"`
	ActorID        string      `json:"actor_id"`
	Timestamp      time.Time   `json:"timestamp"`
	Payload        interface{} `json:"payload"`
}

// ConversationStartedPayload payload.
type ConversationStartedPayload struct {
	Kind          domain.ConversationKind `json:"kind"`
	InitiatorID   string                  `json:"initiator_id"`
	CounterpartID string                  `json:"counterpart_id"`
	Appointment   bool                    `json:"appointment,omitempty"`
}

// ConversationClosedPayload payload.
type ConversationClosedPayload struct {
	ClosedBy     string   `json:"closed_by"`
	Reason       string   `json:"reason,omitempty"`
	Participants []string `json:"participants"`
}

// MessageSentPayload payload.
type MessageSentPayload struct {
	MessageID   string             `json:"message_id"`
	SenderID    string             `json:"sender_id"`
	RecipientID string             `json:"recipient_id"`
	Kind        domain.MessageKind `json:"kind"`
	Body        string             `json:"body"`
	BodyPreview string             `json:"body_preview"`
	CreatedAt   time.Time          `json:"created_at"`
}

// PresenceChangedPayload is the body of presence events delivered on
// conversation channels. Presence never crosses the dispatcher: delivery
// depends on the hub's channel membership, which only the hub can see.
type PresenceChangedPayload struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}
