package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"article_sync/internal/domain"
)

type executorFunc func(ctx context.Context, job domain.Job) error

func (f executorFunc) Execute(ctx context.Context, job domain.Job) error {
	return f(ctx, job)
}

func newTestDispatcher(executor Executor, capacity int, runTimeout time.Duration) *LocalDispatcher {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewLocalDispatcher(executor, capacity, runTimeout, logger)
}

func TestNewJob(t *testing.T) {
	job := NewJob("https://a.example", domain.TriggerExternal)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "https://a.example", job.SourceURL)
	assert.Equal(t, domain.TriggerExternal, job.Trigger)
	assert.Equal(t, time.UTC, job.RequestedAt.Location())
	assert.NotEqual(t, job.ID, NewJob("", domain.TriggerManual).ID)
}

func TestLocalDispatcher_RunsJobsInOrder(t *testing.T) {
	got := make(chan string, 2)
	d := newTestDispatcher(executorFunc(func(_ context.Context, job domain.Job) error {
		got <- job.SourceURL
		return nil
	}), 4, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	require.NoError(t, d.Dispatch(ctx, NewJob("https://a.example", domain.TriggerManual)))
	require.NoError(t, d.Dispatch(ctx, NewJob("https://b.example", domain.TriggerManual)))

	for _, want := range []string{"https://a.example", "https://b.example"} {
		select {
		case url := <-got:
			assert.Equal(t, want, url)
		case <-time.After(2 * time.Second):
			t.Fatal("job not executed")
		}
	}

	cancel()
	d.Wait()
}

func TestLocalDispatcher_RejectsWhenFull(t *testing.T) {
	d := newTestDispatcher(executorFunc(func(context.Context, domain.Job) error { return nil }), 1, 0)

	require.NoError(t, d.Dispatch(context.Background(), NewJob("", domain.TriggerManual)))
	err := d.Dispatch(context.Background(), NewJob("", domain.TriggerManual))

	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestLocalDispatcher_BoundsRunAndSurvivesFailures(t *testing.T) {
	done := make(chan error, 2)
	d := newTestDispatcher(executorFunc(func(ctx context.Context, job domain.Job) error {
		if job.SourceURL == "" {
			<-ctx.Done()
			done <- ctx.Err()
			return ctx.Err()
		}
		done <- nil
		return errors.New("boom")
	}), 4, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		d.Wait()
	}()
	d.Start(ctx)

	require.NoError(t, d.Dispatch(ctx, NewJob("", domain.TriggerManual)))
	require.NoError(t, d.Dispatch(ctx, NewJob("https://a.example", domain.TriggerManual)))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("run timeout not applied")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker stopped after a failed job")
	}
}
