package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskhub/internal/config"
	"taskhub/internal/db"
	"taskhub/internal/identity"
	myMiddleware "taskhub/internal/middleware"
	"taskhub/internal/notification"
	"taskhub/internal/pkg/logger"
	"taskhub/internal/presence"
	"taskhub/internal/realtime"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

func main() {
	// 1. Config & Logger
	cfg := config.Load()
	log := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Error("Main", "Invalid configuration", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to Database
	database, err := db.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Error("Main", "Failed to connect to PostgreSQL", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer database.Close()
	log.Info("Main", "Connected to PostgreSQL", nil)

	if err := database.AutoMigrate(ctx); err != nil {
		log.Error("Main", "Migration failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	// 3. Presence mirror (optional Redis)
	var mirror presence.Mirror = presence.NopMirror{}
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn("Main", "Redis unreachable, presence mirror disabled", map[string]interface{}{"error": err.Error(), "addr": cfg.Redis.Addr})
		} else {
			redisMirror := presence.NewRedisMirror(redisClient, log)
			go redisMirror.Run(ctx)
			mirror = redisMirror
			log.Info("Main", "Connected to Redis", map[string]interface{}{"addr": cfg.Redis.Addr})
		}
	}

	// 4. Identity
	identityRepo := identity.NewRepository(database.Conn)
	identityService := identity.NewService(identityRepo, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	identityHandler := identity.NewHandler(identityService)

	// 5. Realtime core
	hub := realtime.NewHub(presence.NewRegistry(), mirror, cfg.Realtime.PresenceDebounce, log)
	go hub.Run(ctx)

	authenticator := realtime.NewAuthenticator(identityService, identityService)
	realtimeHandler := realtime.NewHandler(hub, authenticator, cfg.App.ClientURL, log)

	// 6. Notifications
	// The CRUD side calls Notify* on this service after its writes commit.
	notificationRepo := notification.NewRepository(database.Conn)
	notificationService := notification.NewService(notificationRepo, hub, cfg.Realtime.NotifyConcurrency, log)
	notificationHandler := notification.NewHandler(notificationService, log)

	authMiddleware := myMiddleware.NewAuthMiddleware(identityService)

	// 7. Routes
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", health(hub, cfg.App.Environment))
	r.Post("/api/auth/register", identityHandler.Register)
	r.Post("/api/auth/login", identityHandler.Login)

	// The socket authenticates itself so it can answer with its own errors.
	r.Get("/ws", realtimeHandler.ServeWs)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)
		r.Route("/api/notifications", notificationHandler.Routes)
	})

	srv := &http.Server{
		Addr:              cfg.App.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Main", "Server starting", map[string]interface{}{"addr": cfg.App.Addr, "environment": cfg.App.Environment})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Main", "Server failed", map[string]interface{}{"error": err.Error()})
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Main", "Shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Main", "Graceful shutdown failed", map[string]interface{}{"error": err.Error()})
	}

	// Let the hub close its sessions so the write pumps can send close frames.
	select {
	case <-hub.Done():
	case <-shutdownCtx.Done():
		log.Warn("Main", "Hub did not stop in time", nil)
	}
	time.Sleep(100 * time.Millisecond)
}

type healthResponse struct {
	Message        string    `json:"message"`
	Timestamp      time.Time `json:"timestamp"`
	ConnectedUsers int       `json:"connectedUsers"`
	Environment    string    `json:"environment"`
}

func health(hub *realtime.Hub, environment string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		count, err := hub.OnlineCount(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(healthResponse{
			Message:        "TaskHub API is running",
			Timestamp:      time.Now(),
			ConnectedUsers: count,
			Environment:    environment,
		})
	}
}
