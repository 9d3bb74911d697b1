package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/cache"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/config"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/database"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/logging"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/metrics"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/middleware"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/queue"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/tracing"
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
	gin.SetMode(gin.ReleaseMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, closer, err := tracing.InitTracer(cfg.Tracing)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize tracer")
	}
	defer closer.Close()

	api := &API{cfg: cfg, logger: logger}

	// The cache, catalog and queue are optional: without them the API still
	// answers container queries from the dataset directory.
	if cfg.Redis.Host != "" {
		c, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, serving without cache")
		} else {
			defer c.Close()
			api.cache = c
		}
	}
	if cfg.Database.Host != "" {
		db, err := database.New(cfg.Database)
		if err != nil {
			logger.WithError(err).Warn("Database unavailable, serving without catalog")
		} else {
			defer db.Close()
			api.catalog = database.NewRepository(db)
		}
	}
	if cfg.Queue.Host != "" {
		q, err := queue.New(cfg.Queue, logger)
		if err != nil {
			logger.WithError(err).Warn("Queue unavailable, job submission disabled")
		} else {
			defer q.Close()
			api.publisher = q
		}
	}

	var limiter *middleware.RateLimiter
	if cfg.Server.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
		go limiter.Cleanup(ctx, time.Minute)
	}

	router := setupRouter(api, limiter)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.WithError(err).Error("Metrics server stopped")
			}
		}()
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Starting API server on %s over %s", addr, cfg.Dataset.Dir)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stop()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Metrics server shutdown failed")
		}
	}

	logger.Info("Server stopped")
}
