// Package main is the entry point for the wa-ingest task worker.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ppopeskul/wa-ingest/internal/app"
	"github.com/ppopeskul/wa-ingest/internal/config"
	"github.com/ppopeskul/wa-ingest/internal/queue"
	"github.com/ppopeskul/wa-ingest/internal/scheduler"
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

	if cfg.Queue.Driver == config.QueueDriverNone {
		logger.Fatal("Worker requires queue.driver redis or amqp")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, app.RoleWorker, logger)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer application.Close()

	consumer, err := application.NewConsumer(ctx)
	if err != nil {
		logger.Fatal("Failed to create queue consumer", zap.Error(err))
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			logger.Error("Failed to close queue consumer", zap.Error(err))
		}
	}()

	svc := application.Service
	if svc.Sweeper != nil {
		if err := svc.Sweeper.Start(); err != nil {
			logger.Error("Failed to start media sweeper", zap.Error(err))
		}
	}

	var reclaimer *scheduler.Scheduler
	if r, ok := consumer.(queue.Reclaimer); ok && cfg.Queue.ClaimIdle > 0 && cfg.Queue.ClaimInterval > 0 {
		reclaimer = scheduler.NewScheduler(logger, "stream-reclaimer", cfg.Queue.ClaimInterval, func(ctx context.Context) error {
			claimed, err := r.Reclaim(ctx, svc.Tasks)
			if claimed > 0 {
				logger.Info("Reclaimed stale tasks", zap.Int("count", claimed))
			}
			return err
		})
		if err := reclaimer.Start(ctx); err != nil {
			logger.Error("Failed to start stream reclaimer", zap.Error(err))
		}
	}

	logger.Info("Worker started",
		zap.String("queueDriver", cfg.Queue.Driver),
		zap.String("consumer", cfg.Queue.Consumer),
		zap.Int("workers", cfg.Queue.Workers))

	if err := consumer.Run(ctx, svc.Tasks); err != nil {
		logger.Error("Queue consumer stopped with error", zap.Error(err))
	}

	logger.Info("Shutting down worker...")

	if reclaimer != nil && reclaimer.IsRunning() {
		if err := reclaimer.Stop(); err != nil {
			logger.Error("Failed to stop stream reclaimer", zap.Error(err))
		}
	}

	if svc.Sweeper != nil && svc.Sweeper.IsRunning() {
		if err := svc.Sweeper.Stop(); err != nil {
			logger.Error("Failed to stop media sweeper", zap.Error(err))
		}
	}

	application.Drain()

	logger.Info("Worker exited")
}
