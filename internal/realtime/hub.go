package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/calmtunes/chat-service/internal/events"
)

// ChannelEvent is the JSON envelope delivered over a conversation channel.
type ChannelEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	Payload        any    `json:"payload,omitempty"`
}

// Hub routes events to currently connected clients. One logical channel
// exists per conversation id; membership is explicit via Join/Leave and
// advisory only — persistence never depends on who is listening. Delivery
// is best effort with no replay: a client that missed events reconciles by
// re-fetching the message log.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*Client]struct{}
	byUser   map[string]map[*Client]struct{}
	joined   map[*Client]map[string]struct{}

	presence *PresenceTracker
	logger   *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(presence *PresenceTracker, logger *zap.Logger) *Hub {
	return &Hub{
		channels: make(map[string]map[*Client]struct{}),
		byUser:   make(map[string]map[*Client]struct{}),
		joined:   make(map[*Client]map[string]struct{}),
		presence: presence,
		logger:   logger,
	}
}

// Connect registers an authenticated client session.
func (h *Hub) Connect(ctx context.Context, c *Client) {
	h.mu.Lock()
	set, ok := h.byUser[c.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		h.byUser[c.UserID] = set
	}
	set[c] = struct{}{}
	h.joined[c] = make(map[string]struct{})
	h.mu.Unlock()

	// the online announcement happens on Join, once the session is a
	// member of a channel someone can observe
	if h.presence != nil {
		h.presence.Connected(ctx, c.UserID)
	}
}

// Disconnect removes the client from every channel and, when it was the
// user's last session, announces the user offline to the channels it had
// joined.
func (h *Hub) Disconnect(ctx context.Context, c *Client) {
	h.mu.Lock()
	wasJoined := make([]string, 0, len(h.joined[c]))
	for convID := range h.joined[c] {
		wasJoined = append(wasJoined, convID)
		h.removeFromChannelLocked(c, convID)
	}
	delete(h.joined, c)
	if set, ok := h.byUser[c.UserID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byUser, c.UserID)
		}
	}
	h.mu.Unlock()

	c.Close()

	if h.presence != nil && h.presence.Disconnected(ctx, c.UserID) {
		event := ChannelEvent{
			Type:    "presence",
			Payload: events.PresenceChangedPayload{UserID: c.UserID, Online: false},
		}
		for _, convID := range wasJoined {
			event.ConversationID = convID
			h.Publish(convID, event)
		}
	}
}

// Join subscribes the client to a conversation channel and announces the
// user online to the channels its sessions are part of. Authorization is
// the caller's responsibility. Repeat joins re-announce; presence events
// are advisory.
func (h *Hub) Join(c *Client, conversationID string) {
	h.mu.Lock()
	set, ok := h.channels[conversationID]
	if !ok {
		set = make(map[*Client]struct{})
		h.channels[conversationID] = set
	}
	set[c] = struct{}{}
	if h.joined[c] == nil {
		h.joined[c] = make(map[string]struct{})
	}
	h.joined[c][conversationID] = struct{}{}
	h.mu.Unlock()

	h.BroadcastPresence(c.UserID, true)
}

// Leave unsubscribes the client from a conversation channel.
func (h *Hub) Leave(c *Client, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromChannelLocked(c, conversationID)
	delete(h.joined[c], conversationID)
}

// Publish delivers the event to every client currently joined to the
// channel. Within one channel, clients observe events in Publish call
// order; across channels or reconnects there is no guarantee. Slow clients
// are dropped.
func (h *Hub) Publish(conversationID string, event ChannelEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("encode channel event", zap.Error(err))
		return
	}

	h.mu.RLock()
	var slow []*Client
	for c := range h.channels[conversationID] {
		if !c.enqueue(payload) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow realtime client",
			zap.String("user_id", c.UserID),
			zap.String("conversation_id", conversationID))
		h.drop(c)
	}
}

// SendToUser delivers an event to every session of one user regardless of
// channel membership.
func (h *Hub) SendToUser(userID string, event ChannelEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("encode channel event", zap.Error(err))
		return
	}

	h.mu.RLock()
	var slow []*Client
	for c := range h.byUser[userID] {
		if !c.enqueue(payload) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.drop(c)
	}
}

// BroadcastPresence announces a user's online state to the channels that
// user's sessions have joined.
func (h *Hub) BroadcastPresence(userID string, online bool) {
	h.mu.RLock()
	targets := make(map[string]struct{})
	for c := range h.byUser[userID] {
		for convID := range h.joined[c] {
			targets[convID] = struct{}{}
		}
	}
	h.mu.RUnlock()

	for convID := range targets {
		h.Publish(convID, ChannelEvent{
			Type:           "presence",
			ConversationID: convID,
			Payload:        events.PresenceChangedPayload{UserID: userID, Online: online},
		})
	}
}

func (h *Hub) removeFromChannelLocked(c *Client, conversationID string) {
	if set, ok := h.channels[conversationID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.channels, conversationID)
		}
	}
}

func (h *Hub) drop(c *Client) {
	h.mu.Lock()
	for convID := range h.joined[c] {
		h.removeFromChannelLocked(c, convID)
	}
	delete(h.joined, c)
	if set, ok := h.byUser[c.UserID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byUser, c.UserID)
		}
	}
	h.mu.Unlock()
	c.Close()
}
