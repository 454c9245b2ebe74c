package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"article_sync/internal/domain"
)

// Executor runs one job.
type Executor interface {
	Execute(ctx context.Context, job domain.Job) error
}

// JobQueue hands interactive sync requests to whichever process consumes
// the queue.
type JobQueue struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	queue      string
	runTimeout time.Duration
	logger     *slog.Logger
}

func NewJobQueue(cfg Config, runTimeout time.Duration, logger *slog.Logger) (*JobQueue, error) {
	conn, ch, err := dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	if _, err := ch.QueueDeclare(cfg.JobsQueue, true, false, false, false, nil); err != nil {
		closeAll(conn, ch)
		return nil, fmt.Errorf("declare jobs queue: %w", err)
	}

	// one job in flight per consumer keeps runs sequential
	if err := ch.Qos(1, 0, false); err != nil {
		closeAll(conn, ch)
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return &JobQueue{
		conn:       conn,
		channel:    ch,
		queue:      cfg.JobsQueue,
		runTimeout: runTimeout,
		logger:     logger.With("component", "jobs"),
	}, nil
}

// Dispatch enqueues job.
func (q *JobQueue) Dispatch(ctx context.Context, job domain.Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	err = q.channel.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    job.ID,
		Body:         body,
		Timestamp:    job.RequestedAt,
	})
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}

	q.logger.Debug("job queued", "job_id", job.ID, "source", job.SourceURL)
	return nil
}

// Consume executes queued jobs one at a time until ctx is done or the
// delivery channel closes.
func (q *JobQueue) Consume(ctx context.Context, executor Executor) error {
	deliveries, err := q.channel.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume jobs: %w", err)
	}

	q.logger.Info("consuming jobs", "queue", q.queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("jobs channel closed")
			}
			q.handle(ctx, executor, d)
		}
	}
}

func (q *JobQueue) handle(ctx context.Context, executor Executor, d amqp.Delivery) {
	var job domain.Job
	if err := json.Unmarshal(d.Body, &job); err != nil {
		q.logger.Warn("dropping malformed job", "error", err)
		_ = d.Nack(false, false)
		return
	}

	runCtx := ctx
	if q.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, q.runTimeout)
		defer cancel()
	}

	logger := q.logger.With("job_id", job.ID, "source", job.SourceURL)
	if err := executor.Execute(runCtx, job); err != nil {
		logger.Warn("job failed", "error", err)
	} else {
		logger.Info("job finished")
	}

	// outcomes are recorded in the sync log, so failed jobs are not redelivered
	if err := d.Ack(false); err != nil {
		logger.Error("failed to ack job", "error", err)
	}
}

func (q *JobQueue) Close() error {
	return closeAll(q.conn, q.channel)
}
