// Package app assembles the infrastructure shared by the server and worker binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/ppopeskul/wa-ingest/internal/config"
	"github.com/ppopeskul/wa-ingest/internal/gateway"
	"github.com/ppopeskul/wa-ingest/internal/infrastructure/migrate"
	"github.com/ppopeskul/wa-ingest/internal/queue"
	"github.com/ppopeskul/wa-ingest/internal/repository"
	"github.com/ppopeskul/wa-ingest/internal/service"
)

type Role string

const (
	RoleServer Role = "server"
	RoleWorker Role = "worker"
)

// App owns every long-lived connection of one process.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *sqlx.DB
	Redis    *redis.Client
	Producer queue.Producer
	Runner   *queue.BackgroundRunner
	Service  *service.Service
}

// New connects to the database, Redis and the broker and builds the services.
// The server hosts the sweeper only when there is no worker to do it.
func New(ctx context.Context, cfg *config.Config, role Role, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	if cfg.Database.AutoMigrate {
		runner := migrate.NewRunner(&migrate.Config{
			DatabaseURL:    cfg.Database.GetURL(),
			MigrationsPath: cfg.Database.MigrationsPath,
		}, logger)
		if err := runner.Run(); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	a.DB = db

	if cfg.Redis.Enabled || cfg.Queue.Driver == config.QueueDriverRedis {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			// Redis is optional for ingestion: dedup falls back to the database
			// and dispatch falls back to background execution.
			logger.Warn("Redis is unreachable at startup", zap.Error(err))
		}
	}

	a.Producer, err = newProducer(cfg, a.Redis, logger)
	if err != nil {
		logger.Warn("Durable queue unavailable, tasks will run in the background", zap.Error(err))
	}

	a.Runner = queue.NewBackgroundRunner(logger, cfg.Queue.TaskTimeout)
	dispatcher := queue.NewDispatcher(a.Producer, a.Runner, cfg.Queue.PushTimeout, logger)

	gateways, err := newGateways(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	dedupCache := repository.NewNoopDedupCache()
	if cfg.Redis.Enabled && a.Redis != nil {
		dedupCache = repository.NewRedisDedupCache(a.Redis, cfg.Redis.DedupTTL)
	}

	a.Service = service.NewService(cfg, service.Dependencies{
		Repo:        repository.NewRepository(db),
		DedupCache:  dedupCache,
		Gateways:    gateways,
		Dispatcher:  dispatcher,
		RedisClient: a.Redis,
		Background:  a.Runner,
		HostSweeper: role == RoleWorker || cfg.Queue.Driver == config.QueueDriverNone,
	}, logger)

	a.Runner.Start(a.Service.Tasks)

	return a, nil
}

func newProducer(cfg *config.Config, client *redis.Client, logger *zap.Logger) (queue.Producer, error) {
	switch cfg.Queue.Driver {
	case config.QueueDriverRedis:
		return queue.NewRedisProducer(client, cfg.Queue.Stream, logger), nil
	case config.QueueDriverAMQP:
		return queue.NewAMQPProducer(cfg.Queue, logger)
	default:
		return nil, nil
	}
}

func newGateways(cfg *config.Config, logger *zap.Logger) (service.Gateways, error) {
	providerBreaker := gateway.NewCircuitBreaker("provider", &cfg.CircuitBreaker, logger)
	storageBreaker := gateway.NewCircuitBreaker("storage", &cfg.CircuitBreaker, logger)
	functionsBreaker := gateway.NewCircuitBreaker("functions", &cfg.CircuitBreaker, logger)

	storage, err := gateway.NewStorage(cfg, storageBreaker, logger)
	if err != nil {
		return service.Gateways{}, fmt.Errorf("failed to create storage: %w", err)
	}

	return service.Gateways{
		Provider: gateway.NewProviderClient(cfg, providerBreaker, logger),
		Storage:  storage,
		Agent:    gateway.NewAgentClient(&cfg.Functions, functionsBreaker, logger),
		Speech:   gateway.NewSpeechClient(&cfg.Functions, functionsBreaker, logger),
		Breakers: []*gateway.CircuitBreaker{providerBreaker, storageBreaker, functionsBreaker},
	}, nil
}

// NewConsumer opens the broker consumer matching queue.driver.
func (a *App) NewConsumer(ctx context.Context) (queue.Consumer, error) {
	switch a.Config.Queue.Driver {
	case config.QueueDriverRedis:
		return queue.NewRedisConsumer(ctx, a.Redis, a.Config.Queue, a.Logger)
	case config.QueueDriverAMQP:
		return queue.NewAMQPConsumer(a.Config.Queue, a.Logger)
	default:
		return nil, errors.New("queue driver none has no consumer")
	}
}

// Drain waits for background tasks, bounded by queue.drain_timeout.
func (a *App) Drain() {
	ctx, cancel := context.WithTimeout(context.Background(), a.Config.Queue.DrainTimeout)
	defer cancel()

	if err := a.Runner.Wait(ctx); err != nil {
		a.Logger.Warn("Background tasks abandoned on shutdown", zap.Error(err))
	}
}

// Close releases connections. It is safe on a partially built App.
func (a *App) Close() {
	if a.Producer != nil {
		if err := a.Producer.Close(); err != nil {
			a.Logger.Error("Failed to close queue producer", zap.Error(err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Error("Failed to close Redis connection", zap.Error(err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error("Failed to close database connection", zap.Error(err))
		}
	}
}
