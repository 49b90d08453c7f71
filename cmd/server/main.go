package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vkoval/agora/internal/config"
	"github.com/vkoval/agora/internal/database"
	"github.com/vkoval/agora/internal/domain"
	"github.com/vkoval/agora/internal/logging"
	"github.com/vkoval/agora/internal/queue"
	"github.com/vkoval/agora/internal/repository"
	postgresrepo "github.com/vkoval/agora/internal/repository/postgres"
	"github.com/vkoval/agora/internal/service"
	"github.com/vkoval/agora/internal/transport/http/handlers"
	"github.com/vkoval/agora/internal/transport/http/middleware"
	"github.com/vkoval/agora/internal/transport/ws"
)

const systemUsername = "notification-bot"

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogEnv)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := database.Connect(cfg)
	if err != nil {
		logger.Fatal("connect database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, "migrations"); err != nil {
		logger.Fatal("apply migrations", zap.Error(err))
	}
	logger.Info("database ready")

	store := postgresrepo.NewStore(pool)

	// Redis-backed notification queue
	notifyQueue, err := queue.NewRedisQueue(cfg.RedisURL)
	if err != nil {
		logger.Fatal("connect redis", zap.Error(err))
	}
	defer notifyQueue.Close()

	systemUserID, err := ensureSystemUser(ctx, store)
	if err != nil {
		logger.Fatal("ensure system user", zap.Error(err))
	}

	// WebSocket hub
	hub := ws.NewHub(logger.Named("ws"))
	sink := ws.NewHubSink(hub)

	// Services
	authService := service.NewAuthService(store.Users(), cfg.JWTSecret)
	resolver := service.NewAudienceResolver(logger.Named("audience"))
	messageService := service.NewMessageService(
		store, resolver, service.PlainAnalyzer{}, sink, notifyQueue,
		logger.Named("message"),
		service.MessageConfig{
			EditWindow:   cfg.EditWindow,
			MoveWindow:   cfg.MoveWindow,
			SystemUserID: systemUserID,
		},
	)
	flagService := service.NewFlagService(store, sink, notifyQueue,
		logger.Named("flags"), cfg.MarkAllReadBatchSize)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService, logger.Named("http"))
	messageHandler := handlers.NewMessageHandler(messageService, logger.Named("http"))
	flagHandler := handlers.NewFlagHandler(flagService, logger.Named("http"))

	auth := middleware.Auth(cfg.JWTSecret, logger.Named("http"))

	// Routes
	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok"}`))
	})
	mux.HandleFunc("POST /api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)

	// Protected - Messages
	mux.Handle("POST /api/v1/messages", auth(http.HandlerFunc(messageHandler.Send)))
	mux.Handle("PATCH /api/v1/messages/{id}", auth(http.HandlerFunc(messageHandler.Edit)))
	mux.Handle("POST /api/v1/messages/{id}/reactions", auth(http.HandlerFunc(messageHandler.React)))
	mux.Handle("DELETE /api/v1/messages/{id}/reactions", auth(http.HandlerFunc(messageHandler.Unreact)))

	// Protected - Flags
	mux.Handle("POST /api/v1/messages/flags", auth(http.HandlerFunc(flagHandler.UpdateFlags)))
	mux.Handle("POST /api/v1/mark_all_read", auth(http.HandlerFunc(flagHandler.MarkAllRead)))

	// WebSocket
	mux.HandleFunc("GET /api/v1/events", ws.ServeWS(hub, cfg.JWTSecret))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: middleware.CORS(mux),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run()
		return nil
	})

	g.Go(func() error {
		logger.Info("starting server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

// ensureSystemUser creates the bot account that authors topic-move notices,
// if it does not exist yet.
func ensureSystemUser(ctx context.Context, store repository.Store) (uuid.UUID, error) {
	existing, err := store.Users().GetByUsername(ctx, systemUsername)
	if err != nil {
		return uuid.Nil, err
	}
	if existing != nil {
		return existing.ID, nil
	}

	now := time.Now()
	bot := &domain.User{
		ID:           uuid.New(),
		Email:        systemUsername + "@localhost",
		Username:     systemUsername,
		DisplayName:  "Notification Bot",
		PasswordHash: "!",
		Role:         domain.RoleMember,
		IsWebhookBot: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.Users().Create(ctx, bot); err != nil {
		return uuid.Nil, err
	}
	return bot.ID, nil
}
