package queue

import (
	"context"
	"fmt"
	"time"
)

// deliver runs handler with an optional timeout and turns a panic into an error,
// so a broken task is retried or dead-lettered instead of killing the worker.
func deliver(ctx context.Context, handler Handler, task Task, timeout time.Duration) (err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return handler.Handle(ctx, task)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
