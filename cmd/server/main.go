// Package main runs the campaign wizard HTTP server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-ads/wizard/config"
	"github.com/aura-ads/wizard/internal/auth"
	"github.com/aura-ads/wizard/internal/generation"
	"github.com/aura-ads/wizard/internal/middleware"
	"github.com/aura-ads/wizard/internal/realtime"
	"github.com/aura-ads/wizard/internal/wizard"
	"github.com/aura-ads/wizard/pkg/database"
	"github.com/aura-ads/wizard/pkg/queue"
	"github.com/aura-ads/wizard/pkg/redis"
	"github.com/aura-ads/wizard/pkg/response"
	"github.com/aura-ads/wizard/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var presigner generation.Presigner
	if cfg.AWS.GenerationsBucket != "" {
		s3Client, err := storage.NewS3(ctx, s3Config(cfg.AWS), logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			presigner = s3Client
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	hub := realtime.NewHub(logger)
	registry := wizard.NewRegistry(wizard.DefaultsFromConfig(cfg.Wizard), hub, logger)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Wizard draft
	wizardHandler := wizard.NewHandler(registry, logger)

	// Generation
	jobRepo := generation.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	generationHandler := generation.NewHandler(jobRepo, jobQueue, presigner, registry, logger)

	listenerCtx, listenerCancel := context.WithCancel(context.Background())
	defer listenerCancel()
	stopListener, err := generation.NewListener(registry, logger).Start(listenerCtx, redisPubSub)
	if err != nil {
		logger.Fatal("subscribe generation events", zap.Error(err))
	}
	defer stopListener()

	jwtValidate := func(token string) (uuid.UUID, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return uuid.Nil, err
		}
		return claims.UserID, nil
	}
	snapshot := func(userID uuid.UUID) (interface{}, uint64) {
		return registry.Get(userID).Versioned()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(middleware.CORSConfigFrom(cfg.Server)))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok", "drafts": registry.Len()}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/wizard", wizardHandler.Get)
		api.POST("/wizard/reset", wizardHandler.Reset)
		api.PATCH("/wizard/settings", wizardHandler.UpdateSettings)
		api.PUT("/wizard/structure", wizardHandler.LoadStructure)
		api.GET("/wizard/review", wizardHandler.Review)
		api.POST("/wizard/ad-groups", wizardHandler.AddAdGroup)
		api.DELETE("/wizard/ad-groups/:groupId", wizardHandler.RemoveAdGroup)
		api.PATCH("/wizard/ad-groups/:groupId/assets/:assetId", wizardHandler.UpdateAsset)

		api.POST("/wizard/generate", generationHandler.Start)
		api.GET("/generation/jobs/:id", generationHandler.Get)
		api.GET("/generation/jobs/:id/archive", generationHandler.Archive)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, logger, jwtValidate, snapshot, cfg.Server.CORSAllowedOrigins))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	listenerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func s3Config(aws config.AWSConfig) storage.S3Config {
	return storage.S3Config{
		Region:               aws.Region,
		AccessKeyID:          aws.AccessKeyID,
		SecretAccessKey:      aws.SecretAccessKey,
		Bucket:               aws.GenerationsBucket,
		PresignExpireMinutes: aws.PresignExpireMinutes,
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
