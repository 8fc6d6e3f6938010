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
	"github.com/rs/zerolog"

	"github.com/classpage/backend/config"
	"github.com/classpage/backend/internal/cache"
	"github.com/classpage/backend/internal/database"
	"github.com/classpage/backend/internal/handlers"
	"github.com/classpage/backend/internal/metrics"
	"github.com/classpage/backend/internal/middleware"
	"github.com/classpage/backend/internal/relay"
	"github.com/classpage/backend/internal/repository"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Connect to database
	db, err := database.NewPostgresDB(cfg.GetDSN())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Run migrations
	logger.Info().Msg("running database migrations")
	if err := database.RunMigrations(db.DB); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Connect to Redis; the relay runs degraded without it (welcome dedup
	// falls back to a table scan, history responses are uncached).
	redis, err := cache.NewRedisClient(cfg.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to connect to Redis, running without cache")
		redis = nil
	} else {
		defer redis.Close()
	}

	// Initialize repositories
	msgRepo := repository.NewMessageRepository(db)

	// Initialize the relay
	var marker relay.WelcomeMarker
	var invalidator relay.HistoryInvalidator
	if redis != nil {
		marker = redis
		invalidator = redis
	}
	chatRelay := relay.New(msgRepo, marker, invalidator, cfg.Chat, logger.With().Str("component", "relay").Logger())
	wsHandler := relay.NewHandler(chatRelay, cfg.Chat, cfg.CORS.AllowedOrigins, logger.With().Str("component", "ws").Logger())

	// Initialize handlers
	msgHandler := handlers.NewMessageHandler(msgRepo, redis, cfg.Chat.HistoryLimit, cfg.Chat.HistoryTTL, logger.With().Str("component", "http").Logger())

	// Setup Gin router
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(cfg.CORS.AllowedOrigins))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// History side-channel, hit on page load before the socket stream.
	router.GET("/api/chat/messages", msgHandler.GetMessages)

	// Chat websocket on its own path so it cannot collide with other socket
	// traffic sharing the port.
	router.GET("/ws/chat", wsHandler.HandleWebSocket)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("env", cfg.Server.Env).Msg("starting chat server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
