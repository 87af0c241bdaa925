package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/ppopeskul/wa-ingest/internal/config"
)

const (
	fieldTask    = "task"
	fieldKind    = "kind"
	fieldAttempt = "attempt"
	fieldError   = "error"
)

type redisProducer struct {
	client *redis.Client
	stream string
	logger *zap.Logger
}

// NewRedisProducer appends tasks to a Redis stream.
func NewRedisProducer(client *redis.Client, stream string, logger *zap.Logger) Producer {
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Push(ctx context.Context, task Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	values, err := streamValues(task)
	if err != nil {
		return err
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("failed to push task to stream %s: %w", p.stream, err)
	}

	return nil
}

// Close is a no-op; the Redis client is shared and closed by its owner.
func (p *redisProducer) Close() error {
	return nil
}

func streamValues(task Task) (map[string]interface{}, error) {
	data, err := task.Encode()
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		fieldTask:    string(data),
		fieldKind:    string(task.Kind),
		fieldAttempt: task.Attempt,
	}, nil
}

type redisConsumer struct {
	client *redis.Client
	cfg    config.QueueConfig
	logger *zap.Logger
}

// NewRedisConsumer reads tasks through a consumer group, creating the group when missing.
func NewRedisConsumer(ctx context.Context, client *redis.Client, cfg config.QueueConfig, logger *zap.Logger) (Consumer, error) {
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	c := &redisConsumer{
		client: client,
		cfg:    cfg,
		logger: logger,
	}

	// Starting from "0" keeps entries added before the group existed.
	if err := client.XGroupCreateMkStream(ctx, cfg.Stream, cfg.Group, "0").Err(); err != nil &&
		!strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return c, nil
}

func (c *redisConsumer) Run(ctx context.Context, handler Handler) error {
	c.logger.Info("Redis consumer started",
		zap.String("stream", c.cfg.Stream),
		zap.String("group", c.cfg.Group),
		zap.String("consumer", c.cfg.Consumer))

	// Entries delivered to this consumer before a restart and never acknowledged.
	if err := c.drain(ctx, handler, "0"); err != nil && ctx.Err() == nil {
		c.logger.Error("Failed to recover pending tasks", zap.Error(err))
	}

	for {
		if ctx.Err() != nil {
			c.logger.Info("Redis consumer stopped")
			return nil
		}

		if _, err := c.readBatch(ctx, handler, ">"); err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.logger.Error("Failed to read from stream", zap.Error(err))
			sleepCtx(ctx, time.Second)
		}
	}
}

// drain walks this consumer's pending entries once, starting after id start.
func (c *redisConsumer) drain(ctx context.Context, handler Handler, start string) error {
	for ctx.Err() == nil {
		lastID, err := c.readBatch(ctx, handler, start)
		if err != nil {
			return err
		}
		if lastID == "" {
			return nil
		}
		start = lastID
	}
	return ctx.Err()
}

// readBatch processes one batch and returns the id of its last entry, or "" when empty.
func (c *redisConsumer) readBatch(ctx context.Context, handler Handler, start string) (string, error) {
	args := &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, start},
		Count:    c.cfg.BatchSize,
		Block:    c.cfg.Block,
	}
	if start != ">" {
		// Pending reads return immediately.
		args.Block = -1
	}

	streams, err := c.client.XReadGroup(ctx, args).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read group: %w", err)
	}

	var (
		wg     sync.WaitGroup
		sem    = make(chan struct{}, c.cfg.Workers)
		lastID string
	)
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			lastID = msg.ID
			sem <- struct{}{}
			wg.Add(1)
			go func(msg redis.XMessage) {
				defer wg.Done()
				defer func() { <-sem }()
				c.process(ctx, handler, msg)
			}(msg)
		}
	}
	wg.Wait()

	return lastID, nil
}

func (c *redisConsumer) process(ctx context.Context, handler Handler, msg redis.XMessage) {
	raw, _ := msg.Values[fieldTask].(string)
	task, err := DecodeTask([]byte(raw))
	if err != nil {
		c.logger.Error("Dropping undecodable task", zap.String("entryID", msg.ID), zap.Error(err))
		c.deadLetter(ctx, msg.ID, map[string]interface{}{fieldTask: raw, fieldError: err.Error()})
		return
	}

	err = deliver(ctx, handler, task, c.cfg.TaskTimeout)
	if err == nil {
		c.ack(ctx, msg.ID)
		return
	}

	if ctx.Err() != nil {
		// Unacked entries stay pending and are replayed or reclaimed after restart.
		c.logger.Info("Task interrupted by shutdown, left pending",
			zap.String("taskID", task.ID),
			zap.String("entryID", msg.ID))
		return
	}

	if task.Attempt >= c.cfg.MaxAttempts {
		c.logger.Error("Max attempts reached, sending task to DLQ",
			zap.String("taskID", task.ID),
			zap.String("kind", string(task.Kind)),
			zap.Int("attempt", task.Attempt),
			zap.Error(err))
		dead := task
		dead.LastError = err.Error()
		values, encErr := streamValues(dead)
		if encErr != nil {
			values = map[string]interface{}{fieldTask: raw}
		}
		values[fieldError] = err.Error()
		c.deadLetter(ctx, msg.ID, values)
		return
	}

	c.logger.Warn("Task failed, requeuing",
		zap.String("taskID", task.ID),
		zap.String("kind", string(task.Kind)),
		zap.Int("attempt", task.Attempt),
		zap.Error(err))
	c.requeue(ctx, msg.ID, task.Retry(err.Error()))
}

// requeue appends the next attempt before acknowledging the failed entry, so a crash in
// between duplicates the task instead of losing it.
func (c *redisConsumer) requeue(ctx context.Context, entryID string, next Task) {
	sleepCtx(ctx, c.cfg.RequeueDelay)

	values, err := streamValues(next)
	if err != nil {
		c.logger.Error("Failed to encode requeued task", zap.String("taskID", next.ID), zap.Error(err))
		return
	}

	writeCtx := context.WithoutCancel(ctx)
	if err := c.client.XAdd(writeCtx, &redis.XAddArgs{Stream: c.cfg.Stream, Values: values}).Err(); err != nil {
		c.logger.Error("Failed to requeue task", zap.String("taskID", next.ID), zap.Error(err))
		return
	}
	c.ack(writeCtx, entryID)
}

func (c *redisConsumer) deadLetter(ctx context.Context, entryID string, values map[string]interface{}) {
	writeCtx := context.WithoutCancel(ctx)
	if err := c.client.XAdd(writeCtx, &redis.XAddArgs{Stream: c.cfg.DLQStream, Values: values}).Err(); err != nil {
		c.logger.Error("Failed to write DLQ entry", zap.String("entryID", entryID), zap.Error(err))
		return
	}
	c.ack(writeCtx, entryID)
}

func (c *redisConsumer) ack(ctx context.Context, entryID string) {
	if err := c.client.XAck(context.WithoutCancel(ctx), c.cfg.Stream, c.cfg.Group, entryID).Err(); err != nil {
		c.logger.Warn("Failed to ack stream entry", zap.String("entryID", entryID), zap.Error(err))
	}
}

// Reclaim claims entries of the group that have been unacknowledged for at least
// queue.claim_idle and processes them as if freshly delivered. claim_idle exceeds
// task_timeout, so an entry that idle is no longer being worked on by any consumer,
// this one included.
func (c *redisConsumer) Reclaim(ctx context.Context, handler Handler) (int, error) {
	if c.cfg.ClaimIdle <= 0 {
		return 0, nil
	}

	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.cfg.Stream,
		Group:  c.cfg.Group,
		Idle:   c.cfg.ClaimIdle,
		Start:  "-",
		End:    "+",
		Count:  c.cfg.BatchSize,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list pending entries: %w", err)
	}

	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		c.logger.Info("Reclaiming stale stream entry",
			zap.String("entryID", p.ID),
			zap.String("previousConsumer", p.Consumer),
			zap.Duration("idle", p.Idle),
			zap.Int64("deliveries", p.RetryCount))
		ids = append(ids, p.ID)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	// MinIdle makes the claim lose cleanly to another replica that got there first.
	messages, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.cfg.Stream,
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		MinIdle:  c.cfg.ClaimIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to claim entries: %w", err)
	}

	for _, msg := range messages {
		if ctx.Err() != nil {
			break
		}
		c.process(ctx, handler, msg)
	}

	return len(messages), nil
}

func (c *redisConsumer) Close() error {
	return nil
}
