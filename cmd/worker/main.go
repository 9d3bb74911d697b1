package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/therealutkarshpriyadarshi/multimodal/internal/cache"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/config"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/database"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/logging"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/media"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/metrics"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/queue"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/storage"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/tracing"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/vad"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/worker"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize tracing
	_, closer, err := tracing.InitTracer(cfg.Tracing)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize tracer")
	}
	defer closer.Close()

	// Start metrics endpoint
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.WithError(err).Error("Metrics server stopped")
			}
		}()
	}

	// Initialize database
	db, err := database.New(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()
	migrateStart := time.Now()
	err = db.Migrate(ctx)
	logger.LogDatabaseOperation("migrate", time.Since(migrateStart), err)
	if err != nil {
		logger.WithError(err).Fatal("Failed to migrate database")
	}

	// Initialize storage
	stor, err := storage.New(cfg.Storage, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize storage")
	}

	// Initialize cache
	c, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to redis")
	}
	defer c.Close()

	// Initialize queue
	q, err := queue.New(cfg.Queue, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to queue")
	}
	defer q.Close()

	classifier, closeClassifier, err := vad.NewClassifier(cfg.VAD.Classifier, cfg.VAD.EnergyThreshold, vad.SileroConfig{
		ModelPath:  cfg.VAD.SileroModelPath,
		SampleRate: cfg.Dataset.AudioSampleRate,
		Threshold:  float32(cfg.VAD.SileroThreshold),
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize voice activity classifier")
	}
	defer closeClassifier()

	svc := worker.NewService(cfg, worker.Deps{
		Store:      stor,
		Catalog:    database.NewRepository(db),
		Locks:      worker.RedisLocker{Cache: c, TTL: cfg.Redis.LockTTL, Logger: logger},
		Decoder:    media.NewFFmpeg(cfg.Media.FFmpegPath, cfg.Media.FFprobePath),
		Classifier: classifier,
		Logger:     logger,
	})

	// Handle shutdown gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutting down worker gracefully...")
		cancel()
	}()

	if depth, err := q.GetQueueDepth(); err == nil {
		logger.Infof("%d jobs waiting in %s", depth, queue.JobQueueName)
	}

	// Start consuming jobs
	logger.Infof("Worker %s started, waiting for jobs...", svc.WorkerID())
	if err := q.ConsumeJobs(ctx, cfg.Worker.Concurrency, svc.ProcessJob); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("Failed to consume jobs")
	}

	if metricsServer != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Metrics server shutdown failed")
		}
	}
	logger.Info("Worker stopped")
}
