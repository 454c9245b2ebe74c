package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"article_sync/internal/domain"
	"article_sync/internal/lock"
)

const noSourcesMessage = "no sources configured"

type SyncService struct {
	registry SourceRegistry
	feed     FeedClient
	importer Importer
	locker   Locker
	now      func() time.Time
	logger   *slog.Logger
}

func NewSyncService(
	registry SourceRegistry,
	feed FeedClient,
	importer Importer,
	locker Locker,
	logger *slog.Logger,
) *SyncService {
	return &SyncService{
		registry: registry,
		feed:     feed,
		importer: importer,
		locker:   locker,
		now:      time.Now,
		logger:   logger,
	}
}

// SyncOne imports the latest page of cfg's feed. Feed failures end up in the
// result, not in the returned error; the error is reserved for runs that
// never started.
func (s *SyncService) SyncOne(ctx context.Context, cfg domain.SourceConfig) (domain.SyncResult, error) {
	logger := s.logger.With("source", cfg.URL)
	result := domain.SyncResult{SourceURL: cfg.URL, Errors: []string{}}

	release, err := s.locker.TryLock(ctx, domain.NormalizeURL(cfg.URL))
	if errors.Is(err, lock.ErrLocked) {
		return result, fmt.Errorf("%w: %s", domain.ErrRunInProgress, cfg.URL)
	}
	if err != nil {
		return result, fmt.Errorf("acquire run lock: %w", err)
	}
	defer release()

	startTime := s.now()
	count := domain.ClampPostCount(cfg.PostCount)
	logger.Info("starting sync", "count", count)

	defer s.touch(ctx, cfg.URL, logger)

	articles, err := s.feed.FetchPage(ctx, cfg.URL, count)
	if err != nil {
		logger.Warn("fetch failed", "error", err)
		result.Errors = append(result.Errors, err.Error())
		return result, nil
	}
	if len(articles) > count {
		articles = articles[:count]
	}

	s.importer.BeginRun(cfg.URL)
	opts := domain.ImportOptions{
		SourceURL:  cfg.URL,
		PostCount:  count,
		CategoryID: cfg.CategoryID,
		AuthorID:   cfg.AuthorID,
	}

	for _, article := range articles {
		outcome, err := s.importOne(ctx, article, opts)
		if err != nil {
			result.ErrorCount++
			result.Errors = append(result.Errors, err.Error())
			logger.Warn("article import failed", "external_id", article.ExternalID, "error", err)
			continue
		}

		switch outcome {
		case domain.OutcomeImported:
			result.ImportedCount++
			result.Imported = append(result.Imported, article.ExternalID)
		case domain.OutcomeSkipped:
			result.SkippedCount++
		}
	}

	logger.Info("sync completed",
		"fetched", len(articles),
		"imported", result.ImportedCount,
		"skipped", result.SkippedCount,
		"errors", result.ErrorCount,
		"duration", s.now().Sub(startTime),
	)

	return result, nil
}

func (s *SyncService) importOne(ctx context.Context, article domain.RemoteArticle, opts domain.ImportOptions) (outcome domain.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &domain.ImportError{ExternalID: article.ExternalID, Reason: fmt.Errorf("panic: %v", r)}
		}
	}()
	return s.importer.ImportOne(ctx, article, opts)
}

func (s *SyncService) touch(ctx context.Context, url string, logger *slog.Logger) {
	if err := s.registry.Touch(context.WithoutCancel(ctx), url, s.now()); err != nil {
		logger.Warn("failed to stamp last sync time", "error", err)
	}
}

// SyncAll runs SyncOne for every registered source in order. It never
// stops early: per-source failures are collected into the aggregate.
func (s *SyncService) SyncAll(ctx context.Context) domain.AggregateResult {
	agg := domain.AggregateResult{Errors: []string{}}

	sources, err := s.registry.List(ctx)
	if err != nil {
		agg.Errors = append(agg.Errors, fmt.Sprintf("load sources: %v", err))
		return agg
	}

	agg.TotalSources = len(sources)
	if len(sources) == 0 {
		agg.Errors = append(agg.Errors, noSourcesMessage)
		return agg
	}

	for _, src := range sources {
		if src.URL == "" {
			agg.Errors = append(agg.Errors, "source without url skipped")
			continue
		}
		if err := ctx.Err(); err != nil {
			agg.Errors = append(agg.Errors, fmt.Sprintf("error at %s: %v", src.URL, err))
			continue
		}

		result, err := s.syncOneSafe(ctx, src)
		if err != nil {
			agg.Errors = append(agg.Errors, fmt.Sprintf("error at %s: %v", src.URL, err))
			continue
		}

		if result.ImportedCount > 0 {
			agg.SuccessfulSources++
		}
		agg.TotalArticlesImported += result.ImportedCount
		for _, msg := range result.Errors {
			agg.Errors = append(agg.Errors, fmt.Sprintf("error at %s: %s", src.URL, msg))
		}
	}

	s.logger.Info("sync of all sources completed",
		"total", agg.TotalSources,
		"successful", agg.SuccessfulSources,
		"imported", agg.TotalArticlesImported,
		"errors", len(agg.Errors),
	)

	return agg
}

func (s *SyncService) syncOneSafe(ctx context.Context, cfg domain.SourceConfig) (result domain.SyncResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sync panicked", "source", cfg.URL, "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.SyncOne(ctx, cfg)
}
