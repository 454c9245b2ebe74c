package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"article_sync/internal/domain"
)

var ErrQueueFull = errors.New("job queue full")

// Executor runs one job. *Runner implements it.
type Executor interface {
	Execute(ctx context.Context, job domain.Job) error
}

// NewJob builds a job for url (empty for all sources).
func NewJob(url string, trigger domain.Trigger) domain.Job {
	return domain.Job{
		ID:          uuid.NewString(),
		SourceURL:   url,
		Trigger:     trigger,
		RequestedAt: time.Now().UTC(),
	}
}

// LocalDispatcher runs jobs on a single background worker in this process.
type LocalDispatcher struct {
	executor   Executor
	jobs       chan domain.Job
	runTimeout time.Duration
	logger     *slog.Logger
	wg         sync.WaitGroup
}

func NewLocalDispatcher(executor Executor, capacity int, runTimeout time.Duration, logger *slog.Logger) *LocalDispatcher {
	if capacity <= 0 {
		capacity = 16
	}
	return &LocalDispatcher{
		executor:   executor,
		jobs:       make(chan domain.Job, capacity),
		runTimeout: runTimeout,
		logger:     logger.With("component", "dispatcher"),
	}
}

// Dispatch queues job without waiting for it to run.
func (d *LocalDispatcher) Dispatch(_ context.Context, job domain.Job) error {
	select {
	case d.jobs <- job:
		d.logger.Debug("job queued", "job_id", job.ID, "source", job.SourceURL)
		return nil
	default:
		return ErrQueueFull
	}
}

// Start launches the worker. It stops when ctx is done.
func (d *LocalDispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case job := <-d.jobs:
				d.run(ctx, job)
			}
		}
	}()
}

// Wait blocks until the worker has exited.
func (d *LocalDispatcher) Wait() {
	d.wg.Wait()
}

func (d *LocalDispatcher) run(ctx context.Context, job domain.Job) {
	runCtx := ctx
	if d.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.runTimeout)
		defer cancel()
	}

	logger := d.logger.With("job_id", job.ID, "source", job.SourceURL, "trigger", job.Trigger)
	if err := d.executor.Execute(runCtx, job); err != nil {
		logger.Warn("job failed", "error", err)
		return
	}
	logger.Info("job finished")
}
