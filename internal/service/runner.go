package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"article_sync/internal/domain"
)

// SyncAllEvent is the scheduler event whose next run CronInfo reports.
const SyncAllEvent = "sync_all"

// Runner is the trigger surface. Every run it starts is recorded as exactly
// one log entry.
type Runner struct {
	registry     SourceRegistry
	orchestrator Orchestrator
	logs         LogStore
	events       EventLister
	now          func() time.Time
	logger       *slog.Logger
}

func NewRunner(registry SourceRegistry, orchestrator Orchestrator, logs LogStore, events EventLister, logger *slog.Logger) *Runner {
	return &Runner{
		registry:     registry,
		orchestrator: orchestrator,
		logs:         logs,
		events:       events,
		now:          time.Now,
		logger:       logger.With("component", "runner"),
	}
}

// SyncSource runs a single registered source.
func (r *Runner) SyncSource(ctx context.Context, url string, trigger domain.Trigger) (domain.SyncResult, error) {
	cfg, err := r.registry.Get(ctx, url)
	if err != nil {
		r.record(ctx, &url, false, err.Error(), nil, trigger)
		return domain.SyncResult{SourceURL: url, Errors: []string{}}, err
	}

	result, err := r.orchestrator.SyncOne(ctx, cfg)
	if err != nil {
		r.record(ctx, &cfg.URL, false, err.Error(), nil, trigger)
		return result, err
	}

	message := fmt.Sprintf("%d articles imported, %d skipped, %d errors",
		result.ImportedCount, result.SkippedCount, len(result.Errors))
	r.record(ctx, &cfg.URL, len(result.Errors) == 0, message, result, trigger)

	return result, nil
}

// SyncAll runs every registered source.
func (r *Runner) SyncAll(ctx context.Context, trigger domain.Trigger) domain.AggregateResult {
	result := r.orchestrator.SyncAll(ctx)

	var message string
	if result.TotalArticlesImported > 0 {
		message = fmt.Sprintf("%d of %d sources synchronized, %d articles imported",
			result.SuccessfulSources, result.TotalSources, result.TotalArticlesImported)
	} else {
		message = fmt.Sprintf("sync finished, no new articles from %d sources", result.TotalSources)
	}
	r.record(ctx, nil, len(result.Errors) == 0, message, result, trigger)

	return result
}

// Execute runs a queued job.
func (r *Runner) Execute(ctx context.Context, job domain.Job) error {
	trigger := job.Trigger
	if !trigger.Valid() {
		trigger = domain.TriggerManual
	}

	if job.SourceURL == "" {
		r.SyncAll(ctx, trigger)
		return nil
	}
	_, err := r.SyncSource(ctx, job.SourceURL, trigger)
	return err
}

// PruneLogs applies log retention.
func (r *Runner) PruneLogs(ctx context.Context) error {
	removed, err := r.logs.Prune(ctx)
	if err != nil {
		return fmt.Errorf("prune logs: %w", err)
	}
	if removed > 0 {
		r.logger.Info("pruned sync logs", "removed", removed)
	}
	return nil
}

func (r *Runner) RecentLogs(ctx context.Context, n int) ([]domain.LogEntry, error) {
	return r.logs.Recent(ctx, n)
}

// CronInfo lists the scheduled events and when the next full sync runs.
func (r *Runner) CronInfo(_ context.Context) domain.CronInfo {
	info := domain.CronInfo{Events: []domain.ScheduledEvent{}}
	if r.events != nil {
		if events := r.events.Events(); events != nil {
			info.Events = events
		}
	}

	for _, ev := range info.Events {
		if ev.Name == SyncAllEvent {
			next := ev.NextRun
			info.NextRun = &next
			break
		}
	}

	now := r.now()
	switch {
	case info.NextRun == nil:
		info.NextRunMessage = "no synchronization scheduled"
	case !info.NextRun.After(now):
		info.NextRunMessage = "synchronization pending"
	default:
		info.NextRunMessage = "next synchronization " + humanize.RelTime(*info.NextRun, now, "ago", "from now")
	}
	return info
}

func (r *Runner) record(ctx context.Context, sourceURL *string, success bool, message string, result any, trigger domain.Trigger) {
	entry := domain.LogEntry{
		Timestamp: r.now().UTC(),
		SourceURL: sourceURL,
		Success:   success,
		Message:   message,
		Trigger:   trigger,
	}
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			r.logger.Warn("failed to encode run result", "error", err)
		} else {
			entry.Result = raw
		}
	}

	if err := r.logs.Append(context.WithoutCancel(ctx), entry); err != nil {
		r.logger.Error("failed to write sync log", "error", err)
	}

	r.logger.Info("run recorded",
		"trigger", trigger,
		"success", success,
		"message", message,
	)
}
