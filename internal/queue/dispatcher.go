package queue

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type DispatchMode string

const (
	DispatchQueued     DispatchMode = "queued"
	DispatchBackground DispatchMode = "background"
	DispatchDropped    DispatchMode = "dropped"
)

// Dispatcher pushes tasks to the durable producer and falls back to the
// background runner when there is no producer or the push fails.
type Dispatcher struct {
	producer    Producer
	runner      *BackgroundRunner
	pushTimeout time.Duration
	logger      *zap.Logger
}

// NewDispatcher accepts a nil producer, which sends every task to the runner.
func NewDispatcher(producer Producer, runner *BackgroundRunner, pushTimeout time.Duration, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		producer:    producer,
		runner:      runner,
		pushTimeout: pushTimeout,
		logger:      logger,
	}
}

// Enqueue never fails and never waits for the task to run.
func (d *Dispatcher) Enqueue(ctx context.Context, task Task) DispatchMode {
	if d.producer != nil {
		// The push must outlive a cancelled request.
		pushCtx := context.WithoutCancel(ctx)
		if d.pushTimeout > 0 {
			var cancel context.CancelFunc
			pushCtx, cancel = context.WithTimeout(pushCtx, d.pushTimeout)
			defer cancel()
		}

		err := d.producer.Push(pushCtx, task)
		if err == nil {
			d.logger.Debug("Task queued",
				zap.String("taskID", task.ID),
				zap.String("kind", string(task.Kind)),
				zap.String("messageID", task.MessageID()))
			return DispatchQueued
		}

		d.logger.Warn("Queue push failed, falling back to background execution",
			zap.String("taskID", task.ID),
			zap.String("kind", string(task.Kind)),
			zap.Error(err))
	}

	if err := d.runner.Submit(task); err != nil {
		d.logger.Error("Task dropped",
			zap.String("taskID", task.ID),
			zap.String("kind", string(task.Kind)),
			zap.String("messageID", task.MessageID()),
			zap.Error(err))
		return DispatchDropped
	}

	d.logger.Info("Task scheduled in background",
		zap.String("taskID", task.ID),
		zap.String("kind", string(task.Kind)),
		zap.String("messageID", task.MessageID()))

	return DispatchBackground
}

// Durable reports whether a broker producer is configured.
func (d *Dispatcher) Durable() bool {
	return d.producer != nil
}
