package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/calmtunes/chat-service/internal/api/http"
	"github.com/calmtunes/chat-service/internal/api/http/handlers"
	"github.com/calmtunes/chat-service/internal/auth"
	"github.com/calmtunes/chat-service/internal/config"
	"github.com/calmtunes/chat-service/internal/events"
	"github.com/calmtunes/chat-service/internal/observability"
	"github.com/calmtunes/chat-service/internal/persistence"
	"github.com/calmtunes/chat-service/internal/realtime"
	"github.com/calmtunes/chat-service/internal/repository"
	"github.com/calmtunes/chat-service/internal/service"
	"github.com/calmtunes/chat-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	conversationRepo := repository.NewConversationRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)

	dispatcher := events.NewInMemoryDispatcher()

	authService := service.NewAuthService(*cfg, userRepo)
	conversationService := service.NewConversationService(cfg.Chat, service.ConversationDependencies{
		ConversationRepo: conversationRepo,
		MessageRepo:      messageRepo,
		UserRepo:         userRepo,
		Dispatcher:       dispatcher,
	})
	messageService := service.NewMessageService(cfg.Chat, service.MessageDependencies{
		ConversationRepo: conversationRepo,
		MessageRepo:      messageRepo,
		Dispatcher:       dispatcher,
	})
	notificationService := service.NewNotificationService(notificationRepo, dispatcher, logger)

	mirror := realtime.NewRedisPresence(redis.Client, cfg.Presence.KeyPrefix, cfg.Presence.TTL())
	presence := realtime.NewPresenceTracker(mirror, logger)
	hub := realtime.NewHub(presence, logger)
	bridge := realtime.NewEventBridge(hub)

	// notification handlers register before the bridge so the durable record
	// exists by the time connected clients see the event
	worker.StartEventFanout(dispatcher, notificationService, bridge)

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo)
	metrics := observability.NewMetrics()

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(authService),
		Conversations:  handlers.NewConversationsHandler(conversationService, messageService),
		Notifications:  handlers.NewNotificationsHandler(notificationService),
		Presence:       handlers.NewPresenceHandler(presence),
		WS:             handlers.NewWSHandler(authService.TokenManager(), hub, conversationService, messageService, cfg.Websocket, logger),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
