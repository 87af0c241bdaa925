package service

import (
	"github.com/ppopeskul/wa-ingest/internal/api"
	"github.com/ppopeskul/wa-ingest/internal/classifier"
	"github.com/ppopeskul/wa-ingest/internal/queue"
)

type IngestOutcome string

const (
	OutcomeProcessed IngestOutcome = "processed"
	OutcomeIgnored   IngestOutcome = "ignored"
	OutcomeDuplicate IngestOutcome = "duplicate"
)

// IngestResult describes what a webhook delivery did. ID fields are empty when the
// outcome produced no row.
type IngestResult struct {
	Outcome        IngestOutcome
	Kind           classifier.Kind
	Reason         string
	MessageID      string
	ConversationID string
	Dispatch       []queue.DispatchMode
}

type HealthStatus struct {
	Status          api.HealthResponseStatus         `json:"status"`
	DatabaseStatus  api.HealthResponseDatabaseStatus `json:"database_status"`
	RedisStatus     api.HealthResponseRedisStatus    `json:"redis_status"`
	SweeperStatus   api.HealthResponseSweeperStatus  `json:"sweeper_status"`
	QueueDriver     string                           `json:"queue_driver"`
	BackgroundTasks int64                            `json:"background_tasks"`
	CircuitBreakers []api.CircuitBreakerStatus       `json:"circuit_breakers,omitempty"`
}
