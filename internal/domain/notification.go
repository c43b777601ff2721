package domain

import "time"

// NotificationType tags the event that produced a notification.
type NotificationType string

const (
	NotificationNewConversation     NotificationType = "new_conversation"
	NotificationConversationStarted NotificationType = "conversation_started"
	NotificationNewMessage          NotificationType = "new_message"
	NotificationConversationClosed  NotificationType = "conversation_closed"
	NotificationAppointment         NotificationType = "appointment_conversation"
)

// Notification is a persisted, per-user event record. Immutable once
// created except for the read transition.
type Notification struct {
	ID        string
	UserID    string
	Type      NotificationType
	Title     string
	Body      string
	Payload   map[string]any
	IsRead    bool
	CreatedAt time.Time
}
