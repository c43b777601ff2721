package dto

import "time"

// StartConversationRequest payload for starting or resuming a thread.
type StartConversationRequest struct {
	CounterpartID string `json:"counterpart_id"`
	Kind          string `json:"kind"`
}

// CloseConversationRequest payload for the close action.
type CloseConversationRequest struct {
	Reason string `json:"reason"`
}

// SendMessageRequest payload for posting a message.
type SendMessageRequest struct {
	Content string `json:"content"`
	Kind    string `json:"kind"`
}

// ParticipantView is one side of a conversation.
type ParticipantView struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// MessageResponse is one message in a thread.
type MessageResponse struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Kind           string    `json:"kind"`
	Content        string    `json:"content"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationSummary is one inbox entry.
type ConversationSummary struct {
	ID           string            `json:"id"`
	Kind         string            `json:"kind"`
	Status       string            `json:"status"`
	Participants []ParticipantView `json:"participants"`
	LastMessage  *MessageResponse  `json:"last_message,omitempty"`
	UnreadCount  int               `json:"unread_count"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}
