package queue

import "context"

// Producer pushes tasks to a durable broker.
type Producer interface {
	Push(ctx context.Context, task Task) error
	Close() error
}

// Handler executes one task. A returned error makes durable consumers retry the task.
type Handler interface {
	Handle(ctx context.Context, task Task) error
}

type HandlerFunc func(ctx context.Context, task Task) error

func (f HandlerFunc) Handle(ctx context.Context, task Task) error {
	return f(ctx, task)
}

// Consumer delivers tasks from a durable broker to a Handler until ctx is done.
type Consumer interface {
	Run(ctx context.Context, handler Handler) error
	Close() error
}

// Reclaimer takes over entries left unacknowledged by consumers that went away and
// runs them through handler. It returns how many entries it claimed.
type Reclaimer interface {
	Reclaim(ctx context.Context, handler Handler) (int, error)
}
