package worker

import (
	"github.com/calmtunes/chat-service/internal/events"
	"github.com/calmtunes/chat-service/internal/realtime"
	"github.com/calmtunes/chat-service/internal/service"
)

// StartEventFanout registers the subscribers that turn domain events into
// persisted notifications and realtime deliveries. Notifications register
// first so a notification record exists by the time connected clients see
// the event.
func StartEventFanout(dispatcher events.Dispatcher, notifications *service.NotificationService, bridge *realtime.EventBridge) {
	if notifications != nil {
		notifications.RegisterHandlers()
	}
	if bridge != nil {
		bridge.RegisterHandlers(dispatcher)
	}
}
