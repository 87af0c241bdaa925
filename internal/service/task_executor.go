package service

import (
	"context"
	"fmt"

	"github.com/ppopeskul/wa-ingest/internal/queue"
)

// TaskExecutor routes queue tasks to the worker that owns their kind. It is the
// handler for both the durable consumers and the background runner.
type TaskExecutor struct {
	media MediaService
	agent AgentService
}

func NewTaskExecutor(media MediaService, agent AgentService) *TaskExecutor {
	return &TaskExecutor{
		media: media,
		agent: agent,
	}
}

func (e *TaskExecutor) Handle(ctx context.Context, task queue.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	switch task.Kind {
	case queue.TaskKindMedia:
		return e.media.Materialize(ctx, *task.Media)
	case queue.TaskKindAgent:
		return e.agent.Respond(ctx, *task.Agent)
	default:
		return fmt.Errorf("%w: unknown kind %q", queue.ErrInvalidTask, task.Kind)
	}
}
