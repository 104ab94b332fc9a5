// Package main runs the background generation worker (LLM call, archive to S3, validation).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-ads/wizard/config"
	"github.com/aura-ads/wizard/internal/generation"
	"github.com/aura-ads/wizard/internal/realtime"
	"github.com/aura-ads/wizard/internal/worker"
	"github.com/aura-ads/wizard/pkg/database"
	"github.com/aura-ads/wizard/pkg/queue"
	"github.com/aura-ads/wizard/pkg/redis"
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

	rdb, err := redis.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	gemini, err := generation.NewGeminiClient(cfg.Generator, logger)
	if err != nil {
		logger.Fatal("generator", zap.Error(err))
	}

	checkCtx, checkCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := gemini.HealthCheck(checkCtx); err != nil {
		logger.Warn("gemini health check failed", zap.Error(err), zap.String("model", cfg.Generator.Model))
	}
	checkCancel()

	var archiver worker.Archiver
	if cfg.AWS.GenerationsBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			Bucket:               cfg.AWS.GenerationsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled, raw generations will not be archived", zap.Error(err))
		} else {
			archiver = s3Client
		}
	}

	jobRepo := generation.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	publisher := realtime.NewRedisPubSub(rdb.Client, logger)
	processor := worker.NewGenerationProcessor(jobRepo, gemini, jobQueue, publisher, archiver, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		processor.Run(workerCtx)
	}()
	logger.Info("generation worker started", zap.String("model", cfg.Generator.Model))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn("worker did not stop in time")
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
