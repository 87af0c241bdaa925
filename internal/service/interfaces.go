package service

import (
	"context"

	"github.com/ppopeskul/wa-ingest/internal/models"
	"github.com/ppopeskul/wa-ingest/internal/queue"
)

// IngestService runs one webhook delivery through the pipeline.
type IngestService interface {
	Ingest(ctx context.Context, body []byte) (*IngestResult, error)
}

// MediaService downloads a provider attachment and stores it.
type MediaService interface {
	Materialize(ctx context.Context, task queue.MediaTask) error
}

// AgentService asks the AI agent for a reply and sends it.
type AgentService interface {
	Respond(ctx context.Context, task queue.AgentTask) error
}

type MessageService interface {
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	RetryMedia(ctx context.Context, id string) (*models.Message, queue.DispatchMode, error)
}

type SweeperService interface {
	Start() error
	Stop() error
	IsRunning() bool
}

type HealthService interface {
	GetHealth(ctx context.Context) *HealthStatus
}

// TaskDispatcher hands tasks to the durable queue or the background runner.
type TaskDispatcher interface {
	Enqueue(ctx context.Context, task queue.Task) queue.DispatchMode
}

// BackgroundStats reports work running outside the durable queue.
type BackgroundStats interface {
	InFlight() int64
}
