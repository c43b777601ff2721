package domain

import "time"

// MessageKind differentiates user text, system events and file references.
type MessageKind string

const (
	MessageKindText   MessageKind = "TEXT"
	MessageKindSystem MessageKind = "SYSTEM"
	MessageKindFile   MessageKind = "FILE"
)

// Valid reports whether the kind is supported.
func (k MessageKind) Valid() bool {
	switch k {
	case MessageKindText, MessageKindSystem, MessageKindFile:
		return true
	}
	return false
}

// Message is one entry in a conversation's append-only log. Messages are
// never moved between conversations and never deleted; the read flag is
// the only mutable field.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Kind           MessageKind
	Body           string
	Read           bool
	CreatedAt      time.Time
}
