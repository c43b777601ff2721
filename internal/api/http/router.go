package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/calmtunes/chat-service/internal/api/http/handlers"
	"github.com/calmtunes/chat-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Conversations  *handlers.ConversationsHandler
	Notifications  *handlers.NotificationsHandler
	Presence       *handlers.PresenceHandler
	WS             *handlers.WSHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)

	// websocket sessions authenticate through the token query parameter
	app.Get("/ws", cfg.WS.Upgrade, cfg.WS.Handle())

	protected := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())

	conversations := protected.Group("/conversations")
	conversations.Post("", cfg.Conversations.Start)
	conversations.Get("", cfg.Conversations.List)
	conversations.Post("/:id/close", cfg.Conversations.Close)
	conversations.Post("/:id/messages", cfg.Conversations.SendMessage)
	conversations.Get("/:id/messages", cfg.Conversations.Messages)

	notifications := protected.Group("/notifications")
	notifications.Get("", cfg.Notifications.List)
	notifications.Post("/:id/read", cfg.Notifications.MarkRead)

	protected.Get("/presence/:id", cfg.Presence.Get)

	admin := protected.Group("/admin", auth.RequireAdmin())
	admin.Post("/therapists/:id/approve", cfg.Auth.ApproveTherapist)
}
