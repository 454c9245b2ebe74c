package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"article_sync/internal/broker"
	"article_sync/internal/config"
	"article_sync/internal/domain"
	"article_sync/internal/lock"
	"article_sync/internal/registry"
	"article_sync/internal/scheduler"
	"article_sync/internal/service"
	"article_sync/internal/source/feed"
	"article_sync/internal/source/media"
	"article_sync/internal/storage/memory"
	"article_sync/internal/storage/postgres"
	"article_sync/internal/storage/sqlite"
	"article_sync/internal/synclog"
)

const cleanupLogsEvent = "cleanup_logs"

// app is the composition root shared by every command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	registry  *registry.Registry
	logs      *synclog.Store
	scheduler *scheduler.Scheduler
	runner    *service.Runner

	closers []func() error
}

func newApp(ctx context.Context, opts *options) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := setupLogger(cfg.LogLevel)

	a := &app{cfg: cfg, logger: logger}
	if err := a.wire(ctx, opts.ephemeral); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, ephemeral bool) error {
	cfg, logger := a.cfg, a.logger

	var (
		db        *sqlx.DB
		articles  service.ArticleStore
		mediaLib  service.MediaStore
		txManager service.TransactionManager
		authors   registry.AuthorDirectory
		settings  registry.SettingsStore
	)

	if ephemeral {
		logger.Warn("running in ephemeral mode, state is lost on exit")
		articles, mediaLib, txManager = memory.NewArticles(), memory.NewMedia(), memory.TransactionManager{}
		authors = memory.NewAuthors(cfg.Sync.DefaultAuthorID)
	} else {
		var err error
		db, err = a.connect(ctx)
		if err != nil {
			return err
		}
		articles = postgres.NewArticleStore(db)
		mediaLib = postgres.NewMediaStore(db)
		txManager = postgres.NewTransactionManager(db)
		authors = postgres.NewAuthorDirectory(db)
	}

	switch cfg.Settings.Backend {
	case "postgres":
		if db == nil {
			return errors.New("postgres settings backend needs a database")
		}
		settings = postgres.NewSettingsStore(db)
	case "sqlite":
		store, err := sqlite.Open(ctx, cfg.Settings.SQLitePath)
		if err != nil {
			return fmt.Errorf("open sqlite settings: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		settings = store
	default:
		settings = memory.NewSettings()
	}

	var publisher service.Publisher
	if cfg.RabbitMQ.Enabled {
		p, err := broker.NewPublisher(a.brokerConfig(), logger)
		if err != nil {
			return fmt.Errorf("connect publisher: %w", err)
		}
		a.closers = append(a.closers, p.Close)
		publisher = p
	}

	var locker service.Locker
	if cfg.Redis.URL != "" {
		r, err := lock.NewRedis(ctx, cfg.Redis.URL, cfg.Redis.LockTTL, logger)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, r.Close)
		locker = r
	} else {
		locker = lock.NewLocal()
	}

	feedClient := feed.New(feed.Config{
		EndpointPath: cfg.Feed.EndpointPath,
		Timeout:      cfg.Feed.Timeout,
		UserAgent:    cfg.Feed.UserAgent,
	}, logger)

	downloader := media.NewDownloader(media.Config{
		Timeout:       cfg.Media.Timeout,
		RatePerSecond: cfg.Media.RatePerSecond,
		Burst:         cfg.Media.Burst,
		MaxBytes:      cfg.Media.MaxBytes,
		UserAgent:     cfg.Feed.UserAgent,
	})

	a.registry = registry.New(settings, authors, cfg.Sync.DefaultAuthorID, logger)
	a.logs = synclog.New(settings, cfg.Logs.MaxEntries, cfg.Logs.MaxAge, logger)

	importer := service.NewArticleImporter(
		service.NewDeduplicator(articles),
		articles,
		txManager,
		service.NewMediaImporter(mediaLib, articles, downloader, logger),
		publisher,
		logger,
	)
	orchestrator := service.NewSyncService(a.registry, feedClient, importer, locker, logger)

	a.scheduler = scheduler.NewScheduler(cfg.Sync.RunTimeout, logger)
	a.runner = service.NewRunner(a.registry, orchestrator, a.logs, a.scheduler, logger)
	return nil
}

func (a *app) connect(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", a.cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	a.logger.Info("connected to database")
	return db, nil
}

func (a *app) brokerConfig() broker.Config {
	return broker.Config{
		URL:        a.cfg.RabbitMQ.URL,
		Exchange:   a.cfg.RabbitMQ.Exchange,
		RoutingKey: a.cfg.RabbitMQ.RoutingKey,
		QueueName:  a.cfg.RabbitMQ.QueueName,
		JobsQueue:  a.cfg.RabbitMQ.JobsQueue,
	}
}

// armEvents schedules the recurring full sync and log retention.
func (a *app) armEvents(runNow bool) error {
	interval, err := scheduler.ParseSchedule(a.cfg.Sync.Schedule)
	if err != nil {
		return err
	}

	_, err = a.scheduler.Arm(scheduler.Event{
		Name:     service.SyncAllEvent,
		Schedule: a.cfg.Sync.Schedule,
		Interval: interval,
		RunNow:   runNow,
		Run: func(ctx context.Context) error {
			a.runner.SyncAll(ctx, domain.TriggerSchedule)
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("arm %s: %w", service.SyncAllEvent, err)
	}

	_, err = a.scheduler.Arm(scheduler.Event{
		Name:     cleanupLogsEvent,
		Schedule: retentionSchedule(a.cfg.Sync.RetentionInterval),
		Interval: a.cfg.Sync.RetentionInterval,
		Run:      a.runner.PruneLogs,
	})
	if err != nil {
		return fmt.Errorf("arm %s: %w", cleanupLogsEvent, err)
	}
	return nil
}

func retentionSchedule(interval time.Duration) string {
	if interval == 24*time.Hour {
		return "daily"
	}
	return "every " + interval.String()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error during shutdown", "error", err)
		}
	}
}
