package handlers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/calmtunes/chat-service/internal/auth"
	"github.com/calmtunes/chat-service/internal/config"
	"github.com/calmtunes/chat-service/internal/domain"
	"github.com/calmtunes/chat-service/internal/realtime"
	"github.com/calmtunes/chat-service/internal/service"
)

// wsEnvelope is the client-to-server frame format.
type wsEnvelope struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	Kind           string `json:"kind"`
}

// WSHandler upgrades websocket sessions and runs their read loop. The
// connection authenticates once at upgrade time with the same JWT the HTTP
// surface uses; per-frame identity is taken from those claims and not
// re-verified afterwards.
type WSHandler struct {
	tokens        *auth.TokenManager
	hub           *realtime.Hub
	conversations *service.ConversationService
	messages      *service.MessageService
	cfg           config.WebsocketConfig
	logger        *zap.Logger
}

// NewWSHandler constructs handler.
func NewWSHandler(tokens *auth.TokenManager, hub *realtime.Hub, conversations *service.ConversationService, messages *service.MessageService, cfg config.WebsocketConfig, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		tokens:        tokens,
		hub:           hub,
		conversations: conversations,
		messages:      messages,
		cfg:           cfg,
		logger:        logger,
	}
}

// Upgrade gates the route to websocket upgrade requests.
func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Handle returns the websocket route handler for GET /ws?token=<jwt>.
func (h *WSHandler) Handle() fiber.Handler {
	return websocket.New(h.serve)
}

func (h *WSHandler) serve(conn *websocket.Conn) {
	claims, err := h.tokens.ParseToken(conn.Query("token"))
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, encodeWSError("", "invalid token"))
		_ = conn.Close()
		return
	}

	ctx := context.Background()
	client := realtime.NewClient(claims.UserID, conn, h.cfg.SendBufferSize)
	h.hub.Connect(ctx, client)
	go client.WritePump(h.cfg.PingInterval(), h.cfg.WriteDeadline())
	defer h.hub.Disconnect(ctx, client)

	conn.SetReadLimit(h.cfg.MaxMessageBytes)
	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env wsEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			client.Send(wsError("", "invalid frame"))
			continue
		}

		switch env.Type {
		case "join":
			if _, err := h.conversations.GetForParticipant(ctx, env.ConversationID, claims.UserID); err != nil {
				client.Send(wsError(env.ConversationID, "cannot join conversation"))
				continue
			}
			h.hub.Join(client, env.ConversationID)
			client.Send(realtime.ChannelEvent{Type: "joined", ConversationID: env.ConversationID})
		case "leave":
			h.hub.Leave(client, env.ConversationID)
			client.Send(realtime.ChannelEvent{Type: "left", ConversationID: env.ConversationID})
		case "message":
			kind := domain.MessageKind(strings.ToUpper(env.Kind))
			if kind == domain.MessageKindSystem {
				client.Send(wsError(env.ConversationID, "unsupported message kind"))
				continue
			}
			// delivery back to the channel rides the message_sent event
			if _, err := h.messages.Send(ctx, env.ConversationID, claims.UserID, env.Content, kind); err != nil {
				h.logger.Debug("ws send rejected",
					zap.String("user_id", claims.UserID),
					zap.String("conversation_id", env.ConversationID),
					zap.Error(err))
				client.Send(wsError(env.ConversationID, "message rejected"))
			}
		default:
			client.Send(wsError(env.ConversationID, "unsupported frame type"))
		}
	}
}

func wsError(conversationID, message string) realtime.ChannelEvent {
	return realtime.ChannelEvent{
		Type:           "error",
		ConversationID: conversationID,
		Payload:        map[string]any{"message": message},
	}
}

func encodeWSError(conversationID, message string) []byte {
	payload, _ := json.Marshal(wsError(conversationID, message))
	return payload
}
