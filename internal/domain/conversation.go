package domain

import "time"

// ConversationKind distinguishes regular patient/therapist threads from
// admin support threads. One entity covers both instead of parallel tables.
type ConversationKind string

const (
	KindRegular      ConversationKind = "REGULAR"
	KindAdminSupport ConversationKind = "ADMIN_SUPPORT"
)

// Valid reports whether the kind is supported.
func (k ConversationKind) Valid() bool {
	return k == KindRegular || k == KindAdminSupport
}

// ConversationStatus enumerates lifecycle states. Closed is terminal.
type ConversationStatus string

const (
	ConversationStatusActive ConversationStatus = "ACTIVE"
	ConversationStatusClosed ConversationStatus = "CLOSED"
)

// Participant ties a user id to the role it held when the conversation
// was created.
type Participant struct {
	ID   string
	Role Role
}

// Conversation is the aggregate for a two-party thread. The participant
// pair is stored normalized (lexicographically smallest id first) so the
// unordered pair plus kind forms a unique key while status is active.
type Conversation struct {
	ID              string
	Kind            ConversationKind
	ParticipantLow  Participant
	ParticipantHigh Participant
	Status          ConversationStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ClosedAt        *time.Time
	ClosedBy        *string
	ClosureReason   *string
}

// NormalizePair orders two participants for storage.
func NormalizePair(a, b Participant) (low, high Participant) {
	if a.ID <= b.ID {
		return a, b
	}
	return b, a
}

// HasParticipant reports whether the user is one of the two parties.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.ParticipantLow.ID == userID || c.ParticipantHigh.ID == userID
}

// Counterpart returns the participant other than userID.
func (c *Conversation) Counterpart(userID string) (Participant, bool) {
	switch userID {
	case c.ParticipantLow.ID:
		return c.ParticipantHigh, true
	case c.ParticipantHigh.ID:
		return c.ParticipantLow, true
	}
	return Participant{}, false
}

// ParticipantRole returns the role the user holds in this conversation.
func (c *Conversation) ParticipantRole(userID string) (Role, bool) {
	switch userID {
	case c.ParticipantLow.ID:
		return c.ParticipantLow.Role, true
	case c.ParticipantHigh.ID:
		return c.ParticipantHigh.Role, true
	}
	return "", false
}

// ConversationSummary is a conversation annotated for inbox listings.
type ConversationSummary struct {
	Conversation Conversation
	LastMessage  *Message
	UnreadCount  int
}
