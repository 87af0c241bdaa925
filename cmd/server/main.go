// Package main is the entry point for the wa-ingest HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ppopeskul/wa-ingest/internal/app"
	"github.com/ppopeskul/wa-ingest/internal/config"
	"github.com/ppopeskul/wa-ingest/internal/handler"
	"github.com/ppopeskul/wa-ingest/internal/middleware"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	if cfg.Security.InternalToken == "" {
		logger.Warn("security.internal_token is empty, internal endpoints will reject every request")
	}

	ctx := context.Background()
	application, err := app.New(ctx, cfg, app.RoleServer, logger)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer application.Close()

	svc := application.Service
	h := handler.NewHandler(svc, cfg.Server.MaxBodyBytes, logger)

	router := setupRouter(h, cfg)

	middlewareConfig := &middleware.Config{
		Logger:         logger,
		RateLimit:      rate.Limit(cfg.Middleware.RateLimit),
		RateLimitBurst: cfg.Middleware.RateLimitBurst,
		RequestTimeout: time.Duration(cfg.Middleware.RequestTimeout) * time.Second,
	}
	if cfg.Middleware.EnableCORS {
		corsConfig := middleware.DefaultCORSConfig()
		corsConfig.AllowedOrigins = cfg.Middleware.AllowedOrigins
		middlewareConfig.CORS = corsConfig
	}

	finalHandler := middleware.Chain(middlewareConfig)(router)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      finalHandler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if svc.Sweeper != nil {
		if err := svc.Sweeper.Start(); err != nil {
			logger.Error("Failed to start media sweeper", zap.Error(err))
		}
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting server",
			zap.String("address", srv.Addr),
			zap.String("queueDriver", cfg.Queue.Driver),
			zap.Bool("durableQueue", application.Producer != nil))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	if svc.Sweeper != nil && svc.Sweeper.IsRunning() {
		if err := svc.Sweeper.Stop(); err != nil {
			logger.Error("Failed to stop media sweeper", zap.Error(err))
		}
	}

	// Tasks accepted in the background must finish before connections close.
	application.Drain()

	logger.Info("Server exited")
}
