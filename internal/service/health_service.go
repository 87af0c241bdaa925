package service

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker"

	"github.com/ppopeskul/wa-ingest/internal/api"
	"github.com/ppopeskul/wa-ingest/internal/gateway"
	"github.com/ppopeskul/wa-ingest/internal/repository"
)

const healthCheckTimeout = 2 * time.Second

type healthService struct {
	repo        repository.Repository
	redisClient *redis.Client
	sweeper     SweeperService
	queueDriver string
	background  BackgroundStats
	breakers    []*gateway.CircuitBreaker
}

// NewHealthService accepts a nil redis client and a nil sweeper; both are then
// reported as disabled.
func NewHealthService(
	repo repository.Repository,
	redisClient *redis.Client,
	sweeper SweeperService,
	queueDriver string,
	background BackgroundStats,
	breakers []*gateway.CircuitBreaker,
) HealthService {
	return &healthService{
		repo:        repo,
		redisClient: redisClient,
		sweeper:     sweeper,
		queueDriver: queueDriver,
		background:  background,
		breakers:    breakers,
	}
}

func (s *healthService) GetHealth(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Status:      api.Healthy,
		QueueDriver: s.queueDriver,
	}

	status.DatabaseStatus = s.checkDatabaseHealth(ctx)
	status.RedisStatus = s.checkRedisHealth(ctx)

	switch {
	case s.sweeper == nil:
		status.SweeperStatus = api.HealthResponseSweeperStatusDisabled
	case s.sweeper.IsRunning():
		status.SweeperStatus = api.HealthResponseSweeperStatusRunning
	default:
		status.SweeperStatus = api.HealthResponseSweeperStatusStopped
	}

	if s.background != nil {
		status.BackgroundTasks = s.background.InFlight()
	}

	anyOpen := false
	for _, cb := range s.breakers {
		requests, failures := cb.GetCounts()
		state := breakerState(cb.GetState())
		if state == api.CircuitBreakerStatusStateOpen {
			anyOpen = true
		}
		status.CircuitBreakers = append(status.CircuitBreakers, api.CircuitBreakerStatus{
			Name:     cb.Name(),
			State:    state,
			Requests: int(requests),
			Failures: int(failures),
		})
	}

	// Without Redis the pipeline still works: dedup falls through to the
	// database and tasks run in the background.
	if status.RedisStatus == api.HealthResponseRedisStatusDisconnected || anyOpen {
		status.Status = api.Degraded
	}

	if status.DatabaseStatus != api.HealthResponseDatabaseStatusConnected {
		status.Status = api.Unhealthy
	}

	return status
}

func (s *healthService) checkDatabaseHealth(ctx context.Context) api.HealthResponseDatabaseStatus {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := s.repo.Ping(ctx); err != nil {
		return api.HealthResponseDatabaseStatusDisconnected
	}
	return api.HealthResponseDatabaseStatusConnected
}

func (s *healthService) checkRedisHealth(ctx context.Context) api.HealthResponseRedisStatus {
	if s.redisClient == nil {
		return api.HealthResponseRedisStatusDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := s.redisClient.Ping(ctx).Err(); err != nil {
		return api.HealthResponseRedisStatusDisconnected
	}

	return api.HealthResponseRedisStatusConnected
}

func breakerState(state gobreaker.State) api.CircuitBreakerStatusState {
	switch state {
	case gobreaker.StateOpen:
		return api.CircuitBreakerStatusStateOpen
	case gobreaker.StateHalfOpen:
		return api.CircuitBreakerStatusStateHalfOpen
	default:
		return api.CircuitBreakerStatusStateClosed
	}
}
