package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/livecast/backend/config"
	"github.com/livecast/backend/internal/auth"
	"github.com/livecast/backend/internal/cache"
	"github.com/livecast/backend/internal/chat"
	"github.com/livecast/backend/internal/database"
	"github.com/livecast/backend/internal/handlers"
	"github.com/livecast/backend/internal/lifecycle"
	"github.com/livecast/backend/internal/livepeer"
	"github.com/livecast/backend/internal/logging"
	"github.com/livecast/backend/internal/metrics"
	"github.com/livecast/backend/internal/middleware"
	"github.com/livecast/backend/internal/moderator"
	"github.com/livecast/backend/internal/observability"
	"github.com/livecast/backend/internal/realtime"
	"github.com/livecast/backend/internal/repository"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(cfg.Server.Env)

	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceVersion: version,
		Environment:    cfg.Server.Env,
		Enabled:        cfg.Tracing.Enabled,
		Exporter:       cfg.Tracing.Exporter,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SamplerRatio:   cfg.Tracing.SamplerRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init tracing")
	}

	// End-user scoped pool
	db, err := database.NewPostgresDB(cfg.GetDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Administrative pool, handed only to the webhook reconciler
	adminDB, err := database.NewAdminDB(cfg.GetAdminDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database with admin credential")
	}
	defer adminDB.Close()

	log.Info().Msg("running database migrations")
	if err := database.RunMigrations(adminDB.DB); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	var shared middleware.ActionLimiter
	if cfg.Redis.Enabled {
		redis, err := cache.NewRedisClient(cfg.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, using in-process rate limiting")
		} else {
			defer redis.Close()
			shared = redis
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpiryHours)

	// Repositories on the end-user pool
	streamRepo := repository.NewStreamRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	videoRepo := repository.NewVideoRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	modRepo := repository.NewModerationRepository(db)

	adminStores := lifecycle.AdminStores{
		Streams:  repository.NewStreamRepository(adminDB),
		Messages: repository.NewMessageRepository(adminDB),
		Videos:   repository.NewVideoRepository(adminDB),
		Events:   repository.NewWebhookEventRepository(adminDB),
	}

	classifier := moderator.NewChatCompletionClassifier(cfg.Moderation.Provider, cfg.Moderation.APIKey, cfg.Moderation.BaseURL, cfg.Moderation.Model)
	if cfg.Moderation.APIKey == "" {
		log.Warn().Msg("no moderation api key configured, every chat message will fail open")
	}
	gate := moderator.NewGate(classifier, cfg.Moderation.Timeout)
	chatService := chat.NewService(msgRepo, profileRepo, modRepo, gate)

	reconciler := lifecycle.NewReconciler(adminStores, cfg.Livepeer.PlaybackBaseURL)
	capturer := lifecycle.NewCapturer(videoRepo, cfg.Livepeer.PlaybackBaseURL)
	livepeerClient := livepeer.NewClient(cfg.Livepeer.APIKey, cfg.Livepeer.APIBaseURL)

	webhookHandler := handlers.NewWebhookHandler(reconciler, cfg.Livepeer.WebhookSecret)
	chatHandler := handlers.NewChatHandler(chatService)
	streamHandler := handlers.NewStreamHandler(streamRepo, videoRepo, modRepo, livepeerClient, capturer, cfg.Livepeer.IngestURL)
	profileHandler := handlers.NewProfileHandler(profileRepo)

	// Realtime fan-out fed by Postgres notifications
	hub := realtime.NewHub()
	go hub.Run(ctx)
	listener := realtime.NewListener(cfg.GetDSN(), hub)
	go func() {
		if err := listener.Run(ctx); err != nil {
			log.Error().Err(err).Msg("realtime listener stopped")
		}
	}()
	wsHandler := realtime.NewHandler(hub, jwtService, cfg.CORS.AllowedOrigins)

	rateLimiter := middleware.NewRateLimiter(cfg.API.RateLimitMessagesPerSec, cfg.API.ChatBurst, shared)
	rateLimiter.Cleanup(ctx)

	// Setup Gin router
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(metrics.GinMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.CORS.AllowedOrigins))

	// Health check
	router.GET("/health", handlers.NewHealthHandler(db, hub.Count).Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider webhook, no end-user session
	router.POST("/webhook", webhookHandler.Receive)

	// Public reads
	router.GET("/streams/get", streamHandler.Get)
	router.GET("/streams/live", streamHandler.Live)
	router.GET("/streams/:id/chat", chatHandler.History)
	router.GET("/streams/:id/vod", streamHandler.VOD)
	router.GET("/videos", streamHandler.Videos)
	router.GET("/profiles/:id", profileHandler.Get)
	router.GET("/realtime", wsHandler.HandleWebSocket)

	authed := middleware.AuthMiddleware(jwtService)
	chatLimit := middleware.RateLimitMiddleware(rateLimiter, "chat")

	router.POST("/chat/send", authed, chatLimit, chatHandler.Send)
	router.POST("/moderate", authed, chatLimit, chatHandler.Send)
	router.PATCH("/streams/stop-stream", authed, streamHandler.Stop)

	// Protected routes
	api := router.Group("/api/v1")
	api.Use(authed)
	{
		api.GET("/profile", profileHandler.GetMe)
		api.PUT("/profile", profileHandler.Upsert)

		api.POST("/streams", streamHandler.Create)
		api.PATCH("/streams/update-title", streamHandler.UpdateTitle)
		api.GET("/streams/:id/moderation-logs", streamHandler.ModerationLogs)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Server.Env).Str("version", version).Msg("starting livecast server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("tracing shutdown failed")
	}
}
