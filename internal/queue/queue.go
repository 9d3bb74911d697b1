package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/config"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/logging"
	"github.com/therealutkarshpriyadarshi/multimodal/pkg/models"
)

const (
	JobQueueName = "dataset_jobs"
	ExchangeName = "multimodal"
)

// ErrPermanent marks a job failure that retrying cannot fix. Handlers wrap it
// to send a job straight to the dead letter queue.
var ErrPermanent = errors.New("queue: permanent job failure")

// Handler processes one job
type Handler func(ctx context.Context, job *models.Job) error

// Queue provides message queue operations
type Queue struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	maxRetries int
	logger     *logging.Logger
}

// New creates a new queue client and declares the job, retry and dead letter
// topology.
func New(cfg config.QueueConfig, logger *logging.Logger) (*Queue, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	url := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Vhost)

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	q := &Queue{
		conn:       conn,
		channel:    channel,
		maxRetries: cfg.MaxRetries,
		logger:     logger,
	}
	if q.maxRetries <= 0 {
		q.maxRetries = DefaultMaxRetries
	}

	if err := q.declare(); err != nil {
		q.Close()
		return nil, err
	}
	if err := q.SetupDeadLetterQueue(); err != nil {
		q.Close()
		return nil, err
	}

	return q, nil
}

func (q *Queue) declare() error {
	// Declare exchange
	err := q.channel.ExchangeDeclare(
		ExchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	// Declare queue
	_, err = q.channel.QueueDeclare(
		JobQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{"x-max-priority": models.JobPriorityHigh},
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	// Bind queue to exchange
	err = q.channel.QueueBind(
		JobQueueName,
		JobQueueName,
		ExchangeName,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	return nil
}

// Close closes the queue connection
func (q *Queue) Close() error {
	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

// PublishJob publishes a dataset job to the queue
func (q *Queue) PublishJob(ctx context.Context, job *models.Job) error {
	return q.PublishJobWithRetry(ctx, job, 0)
}

// ConsumeJobs delivers jobs to handler until ctx is cancelled. prefetch bounds
// the number of unacknowledged jobs held by this consumer.
func (q *Queue) ConsumeJobs(ctx context.Context, prefetch int, handler Handler) error {
	// Set QoS to limit concurrent processing
	err := q.channel.Qos(
		max(prefetch, 1), // prefetch count
		0,                // prefetch size
		false,            // global
	)
	if err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := q.channel.Consume(
		JobQueueName,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("queue: delivery channel closed")
			}
			q.handle(ctx, msg, handler)
		}
	}
}

func (q *Queue) handle(ctx context.Context, msg amqp.Delivery, handler Handler) {
	var job models.Job
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		q.logger.WithError(err).Error("Dropping undecodable job message")
		msg.Nack(false, false)
		return
	}

	retries := retryCount(msg.Headers)
	job.RetryCount = retries
	herr := handler(ctx, &job)
	if herr != nil && ctx.Err() != nil {
		// shutting down; hand the job back untouched
		msg.Nack(false, true)
		return
	}

	var err error
	switch decide(herr, retries, q.maxRetries) {
	case actionAck:
		// done
	case actionRetry:
		err = q.PublishToRetryQueue(ctx, &job, retries)
	case actionDeadLetter:
		err = q.PublishToDeadLetterQueue(ctx, &job, herr.Error())
	}
	if err != nil {
		// could not reroute; let the broker redeliver it
		q.logger.WithJobID(job.ID).WithError(err).Error("Failed to reroute job")
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}

// GetQueueDepth returns the number of messages in the queue
func (q *Queue) GetQueueDepth() (int, error) {
	info, err := q.channel.QueueInspect(JobQueueName)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect queue: %w", err)
	}

	return info.Messages, nil
}

type action int

const (
	actionAck action = iota
	actionRetry
	actionDeadLetter
)

func decide(err error, retries, maxRetries int) action {
	switch {
	case err == nil:
		return actionAck
	case errors.Is(err, ErrPermanent):
		return actionDeadLetter
	case retries >= maxRetries:
		return actionDeadLetter
	default:
		return actionRetry
	}
}

// retryCount reads the retry header, which brokers may hand back as any
// integer width.
func retryCount(headers amqp.Table) int {
	switch v := headers["x-retry-count"].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int16:
		return int(v)
	case int8:
		return int(v)
	default:
		return 0
	}
}

func priority(job *models.Job) uint8 {
	return uint8(min(max(job.Priority, 0), models.JobPriorityHigh))
}

func publishing(body []byte, headers amqp.Table) amqp.Publishing {
	return amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         body,
		Timestamp:    time.Now(),
		Headers:      headers,
	}
}
