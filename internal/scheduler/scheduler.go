package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs a periodic job: once on start, then on every tick.
// Runs never overlap and each one is bounded so it ends before the next tick.
type Scheduler struct {
	logger   *zap.Logger
	name     string
	interval time.Duration
	taskFunc func(context.Context) error

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(logger *zap.Logger, name string, interval time.Duration, taskFunc func(context.Context) error) *Scheduler {
	return &Scheduler{
		logger:   logger.With(zap.String("job", name)),
		name:     name,
		interval: interval,
		taskFunc: taskFunc,
	}
}

// Start launches the loop. Cancelling ctx stops it like Stop does.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running() {
		return ErrSchedulerAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(runCtx, s.done)

	s.logger.Info("Scheduler started", zap.Duration("interval", s.interval))
	return nil
}

// Stop cancels the loop and waits for an in-flight run to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running() {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.logger.Info("Scheduler stopped")
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running()
}

// running must be called with mu held.
func (s *Scheduler) running() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Name returns the job name used in logs.
func (s *Scheduler) Name() string {
	return s.name
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()
	if err := s.executeTask(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("Scheduled task failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return
	}
	s.logger.Debug("Scheduled task completed", zap.Duration("duration", time.Since(start)))
}

func (s *Scheduler) executeTask(ctx context.Context) (err error) {
	taskCtx, cancel := context.WithTimeout(ctx, taskTimeout(s.interval))
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduled task panicked: %v", r)
		}
	}()

	return s.taskFunc(taskCtx)
}

// taskTimeout keeps a run from overlapping the next tick.
func taskTimeout(interval time.Duration) time.Duration {
	if interval > 2*time.Second {
		return interval - time.Second
	}
	return interval / 2
}
