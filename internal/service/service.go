package service

import (
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/ppopeskul/wa-ingest/internal/config"
	"github.com/ppopeskul/wa-ingest/internal/gateway"
	"github.com/ppopeskul/wa-ingest/internal/repository"
)

// Gateways groups the outbound adapters and the breakers guarding them.
type Gateways struct {
	Provider gateway.ProviderClient
	Storage  gateway.Storage
	Agent    gateway.AgentClient
	Speech   gateway.SpeechClient
	Breakers []*gateway.CircuitBreaker
}

// Dependencies are the collaborators shared by every service.
type Dependencies struct {
	Repo        repository.Repository
	DedupCache  repository.DedupCache
	Gateways    Gateways
	Dispatcher  TaskDispatcher
	RedisClient *redis.Client
	Background  BackgroundStats
	// HostSweeper makes this process own the stale media sweeper.
	HostSweeper bool
}

type Service struct {
	Ingest  IngestService
	Media   MediaService
	Agent   AgentService
	Message MessageService
	Sweeper SweeperService
	Health  HealthService
	Tasks   *TaskExecutor
}

func NewService(cfg *config.Config, deps Dependencies, logger *zap.Logger) *Service {
	ingestService := NewIngestService(cfg, deps.Repo, deps.DedupCache, deps.Dispatcher, logger)
	mediaService := NewMediaService(cfg, deps.Repo, deps.Gateways.Provider, deps.Gateways.Storage, deps.Dispatcher, logger)
	agentService := NewAgentService(cfg, deps.Repo, deps.Gateways.Agent, deps.Gateways.Speech, deps.Gateways.Provider, logger)
	messageService := NewMessageService(deps.Repo, deps.Dispatcher, logger)

	var sweeperService SweeperService
	if cfg.Sweeper.Enabled && deps.HostSweeper {
		sweeperService = NewSweeperService(cfg, deps.Repo, logger)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = deps.RedisClient
	}

	healthService := NewHealthService(deps.Repo, redisClient, sweeperService, cfg.Queue.Driver, deps.Background, deps.Gateways.Breakers)

	return &Service{
		Ingest:  ingestService,
		Media:   mediaService,
		Agent:   agentService,
		Message: messageService,
		Sweeper: sweeperService,
		Health:  healthService,
		Tasks:   NewTaskExecutor(mediaService, agentService),
	}
}
