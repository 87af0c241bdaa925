package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/ppopeskul/wa-ingest/internal/config"
)

const headerLastError = "x-last-error"

// declareTopology declares a durable direct exchange with the task queue and its
// dead-letter queue bound by their own names.
func declareTopology(ch *amqp.Channel, exchange, queue string) error {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	for _, name := range []string{queue, dlqName(queue)} {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", name, err)
		}
		if err := ch.QueueBind(name, name, exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", name, err)
		}
	}

	return nil
}

func dlqName(queue string) string {
	return queue + ".dlq"
}

func publishing(task Task) (amqp.Publishing, error) {
	body, err := task.Encode()
	if err != nil {
		return amqp.Publishing{}, err
	}

	p := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    task.ID,
		Type:         string(task.Kind),
		Timestamp:    time.Now().UTC(),
	}
	if task.LastError != "" {
		p.Headers = amqp.Table{headerLastError: task.LastError}
	}

	return p, nil
}

type amqpProducer struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	mu       sync.Mutex
	exchange string
	queue    string
	logger   *zap.Logger
}

// NewAMQPProducer publishes tasks with publisher confirms. Push returns once the
// broker has confirmed the message.
func NewAMQPProducer(cfg config.QueueConfig, logger *zap.Logger) (Producer, error) {
	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg.Exchange, cfg.AMQPQueue); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("confirm mode: %w", err)
	}

	return &amqpProducer{
		conn:     conn,
		ch:       ch,
		exchange: cfg.Exchange,
		queue:    cfg.AMQPQueue,
		logger:   logger,
	}, nil
}

func (p *amqpProducer) Push(ctx context.Context, task Task) error {
	if err := task.Validate(); err != nil {
		return err
	}

	msg, err := publishing(task)
	if err != nil {
		return err
	}

	p.mu.Lock()
	confirm, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, p.exchange, p.queue, false, false, msg)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to publish task: %w", err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to confirm task: %w", err)
	}
	if !acked {
		return errors.New("broker rejected task")
	}

	return nil
}

func (p *amqpProducer) Close() error {
	if err := p.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		p.logger.Warn("Failed to close amqp channel", zap.Error(err))
	}
	return p.conn.Close()
}

type amqpConsumer struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	mu     sync.Mutex
	cfg    config.QueueConfig
	logger *zap.Logger
}

// NewAMQPConsumer consumes the task queue with manual acknowledgements.
func NewAMQPConsumer(cfg config.QueueConfig, logger *zap.Logger) (Consumer, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PrefetchCount <= 0 {
		cfg.PrefetchCount = cfg.Workers
	}

	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	if err := declareTopology(ch, cfg.Exchange, cfg.AMQPQueue); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &amqpConsumer{
		conn:   conn,
		ch:     ch,
		cfg:    cfg,
		logger: logger,
	}, nil
}

func (c *amqpConsumer) Run(ctx context.Context, handler Handler) error {
	deliveries, err := c.ch.ConsumeWithContext(ctx, c.cfg.AMQPQueue, c.cfg.Consumer, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.cfg.AMQPQueue, err)
	}

	c.logger.Info("AMQP consumer started",
		zap.String("queue", c.cfg.AMQPQueue),
		zap.Int("workers", c.cfg.Workers),
		zap.Int("prefetch", c.cfg.PrefetchCount))

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-deliveries:
					if !ok {
						return
					}
					c.process(ctx, handler, d)
				}
			}
		}()
	}
	wg.Wait()

	if ctx.Err() == nil {
		return errors.New("amqp delivery channel closed")
	}

	c.logger.Info("AMQP consumer stopped")
	return nil
}

func (c *amqpConsumer) process(ctx context.Context, handler Handler, d amqp.Delivery) {
	task, err := DecodeTask(d.Body)
	if err != nil {
		c.logger.Error("Dropping undecodable task", zap.String("messageID", d.MessageId), zap.Error(err))
		c.deadLetter(ctx, d, amqp.Publishing{
			ContentType:  d.ContentType,
			Body:         d.Body,
			DeliveryMode: amqp.Persistent,
			MessageId:    d.MessageId,
			Headers:      amqp.Table{headerLastError: err.Error()},
		})
		return
	}

	handleErr := deliver(ctx, handler, task, c.cfg.TaskTimeout)
	if handleErr == nil {
		c.ack(d)
		return
	}

	if ctx.Err() != nil {
		c.logger.Info("Task interrupted by shutdown, returned to queue",
			zap.String("taskID", task.ID))
		c.nack(d)
		return
	}

	if task.Attempt >= c.cfg.MaxAttempts {
		c.logger.Error("Max attempts reached, sending task to DLQ",
			zap.String("taskID", task.ID),
			zap.String("kind", string(task.Kind)),
			zap.Int("attempt", task.Attempt),
			zap.Error(handleErr))
		dead := task
		dead.LastError = handleErr.Error()
		msg, encErr := publishing(dead)
		if encErr != nil {
			c.nack(d)
			return
		}
		c.deadLetter(ctx, d, msg)
		return
	}

	msg, err := publishing(task.Retry(handleErr.Error()))
	if err != nil {
		c.logger.Error("Failed to encode requeued task", zap.String("taskID", task.ID), zap.Error(err))
		c.nack(d)
		return
	}

	c.logger.Warn("Task failed, requeuing",
		zap.String("taskID", task.ID),
		zap.String("kind", string(task.Kind)),
		zap.Int("attempt", task.Attempt),
		zap.Error(handleErr))

	sleepCtx(ctx, c.cfg.RequeueDelay)
	if err := c.publish(ctx, c.cfg.AMQPQueue, msg); err != nil {
		c.logger.Error("Failed to requeue task", zap.String("taskID", task.ID), zap.Error(err))
		c.nack(d)
		return
	}
	c.ack(d)
}

func (c *amqpConsumer) deadLetter(ctx context.Context, d amqp.Delivery, msg amqp.Publishing) {
	if err := c.publish(ctx, dlqName(c.cfg.AMQPQueue), msg); err != nil {
		c.logger.Error("Failed to write DLQ entry", zap.String("messageID", d.MessageId), zap.Error(err))
		c.nack(d)
		return
	}
	c.ack(d)
}

func (c *amqpConsumer) publish(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ch.PublishWithContext(context.WithoutCancel(ctx), c.cfg.Exchange, routingKey, false, false, msg)
}

func (c *amqpConsumer) ack(d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		c.logger.Warn("Failed to ack delivery", zap.Uint64("deliveryTag", d.DeliveryTag), zap.Error(err))
	}
}

// nack returns the delivery to the queue for redelivery.
func (c *amqpConsumer) nack(d amqp.Delivery) {
	if err := d.Nack(false, true); err != nil {
		c.logger.Warn("Failed to nack delivery", zap.Uint64("deliveryTag", d.DeliveryTag), zap.Error(err))
	}
}

func (c *amqpConsumer) Close() error {
	if err := c.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		c.logger.Warn("Failed to close amqp channel", zap.Error(err))
	}
	return c.conn.Close()
}
