package realtime

import (
	"context"

	"github.com/calmtunes/chat-service/internal/events"
)

// EventBridge forwards domain events onto hub channels. Because the
// dispatcher delivers synchronously, publish order on a channel matches the
// order the originating operations committed.
type EventBridge struct {
	hub *Hub
}

// NewEventBridge creates a bridge for the hub.
func NewEventBridge(hub *Hub) *EventBridge {
	return &EventBridge{hub: hub}
}

// RegisterHandlers subscribes the bridge to the dispatcher.
func (b *EventBridge) RegisterHandlers(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	dispatcher.Subscribe(events.EventMessageSent, b.handleMessageSent)
	dispatcher.Subscribe(events.EventConversationClosed, b.handleConversationClosed)
	dispatcher.Subscribe(events.EventConversationStarted, b.handleConversationStarted)
}

func (b *EventBridge) handleMessageSent(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.MessageSentPayload)
	if !ok {
		return nil
	}
	b.hub.Publish(event.ConversationID, ChannelEvent{
		Type:           "message",
		ConversationID: event.ConversationID,
		Payload:        payload,
	})
	return nil
}

func (b *EventBridge) handleConversationClosed(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ConversationClosedPayload)
	if !ok {
		return nil
	}
	b.hub.Publish(event.ConversationID, ChannelEvent{
		Type:           "conversation_closed",
		ConversationID: event.ConversationID,
		Payload:        payload,
	})
	return nil
}

// handleConversationStarted targets the participants directly; nobody has
// joined the brand-new channel yet.
func (b *EventBridge) handleConversationStarted(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ConversationStartedPayload)
	if !ok {
		return nil
	}
	channelEvent := ChannelEvent{
		Type:           "conversation_started",
		ConversationID: event.ConversationID,
		Payload:        payload,
	}
	b.hub.SendToUser(payload.InitiatorID, channelEvent)
	b.hub.SendToUser(payload.CounterpartID, channelEvent)
	return nil
}
