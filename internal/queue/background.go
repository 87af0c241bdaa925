package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var ErrRunnerClosed = errors.New("background runner is closed")

// BackgroundRunner executes tasks in detached goroutines. It is the degraded
// path used when no durable queue is available.
type BackgroundRunner struct {
	logger   *zap.Logger
	timeout  time.Duration
	handler  Handler
	wg       sync.WaitGroup
	inFlight atomic.Int64
	mu       sync.RWMutex
	closed   bool
}

func NewBackgroundRunner(logger *zap.Logger, timeout time.Duration) *BackgroundRunner {
	return &BackgroundRunner{
		logger:  logger,
		timeout: timeout,
	}
}

// Start binds the handler. Tasks submitted before Start are rejected.
func (r *BackgroundRunner) Start(handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = handler
}

// Submit schedules task and returns immediately.
func (r *BackgroundRunner) Submit(task Task) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrRunnerClosed
	}
	if r.handler == nil {
		return errors.New("background runner has no handler")
	}

	handler := r.handler
	r.wg.Add(1)
	r.inFlight.Add(1)

	go func() {
		defer r.wg.Done()
		defer r.inFlight.Add(-1)
		r.run(handler, task)
	}()

	return nil
}

func (r *BackgroundRunner) run(handler Handler, task Task) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Panic in background task",
				zap.String("taskID", task.ID),
				zap.String("kind", string(task.Kind)),
				zap.Any("panic", rec),
				zap.String("stack", string(debug.Stack())))
		}
	}()

	ctx := context.Background()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := handler.Handle(ctx, task); err != nil {
		r.logger.Error("Background task failed",
			zap.String("taskID", task.ID),
			zap.String("kind", string(task.Kind)),
			zap.String("messageID", task.MessageID()),
			zap.Error(err))
		return
	}

	r.logger.Debug("Background task completed",
		zap.String("taskID", task.ID),
		zap.String("kind", string(task.Kind)),
		zap.Duration("duration", time.Since(start)))
}

// InFlight returns the number of tasks still running.
func (r *BackgroundRunner) InFlight() int64 {
	return r.inFlight.Load()
}

// Wait stops accepting tasks and blocks until running tasks finish or ctx is done.
func (r *BackgroundRunner) Wait(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%d background tasks still running: %w", r.InFlight(), ctx.Err())
	}
}
