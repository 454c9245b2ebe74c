package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"article_sync/internal/domain"
)

type FeedClient interface {
	FetchPage(ctx context.Context, baseURL string, count int) ([]domain.RemoteArticle, error)
}

type SourceRegistry interface {
	List(ctx context.Context) ([]domain.SourceConfig, error)
	Get(ctx context.Context, url string) (domain.SourceConfig, error)
	Touch(ctx context.Context, url string, at time.Time) error
}

type ArticleStore interface {
	Create(ctx context.Context, article *domain.ImportedArticle) (int64, error)
	RecordLink(ctx context.Context, articleID int64, link domain.ArticleLink) error
	FindByExternalID(ctx context.Context, sourceURL string, externalID int64) (int64, bool, error)
	SetThumbnail(ctx context.Context, articleID, mediaID int64) error
}

type MediaStore interface {
	FindByFilename(ctx context.Context, filename string) (int64, bool, error)
	Create(ctx context.Context, asset *domain.MediaAsset) (int64, error)
	UpdateMetadata(ctx context.Context, id int64, altText, description string) error
}

type Downloader interface {
	Download(ctx context.Context, url string) (*domain.MediaAsset, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, article *domain.ImportedArticle) error
	Close() error
}

// Locker hands out per-key advisory locks. TryLock never waits; the
// returned func releases the lock.
type Locker interface {
	TryLock(ctx context.Context, key string) (func(), error)
}

type MediaAttacher interface {
	Attach(ctx context.Context, ref *domain.MediaRef, articleID int64) (int64, bool)
}

type Importer interface {
	BeginRun(sourceURL string)
	ImportOne(ctx context.Context, article domain.RemoteArticle, opts domain.ImportOptions) (domain.Outcome, error)
}

type Orchestrator interface {
	SyncOne(ctx context.Context, cfg domain.SourceConfig) (domain.SyncResult, error)
	SyncAll(ctx context.Context) domain.AggregateResult
}

type LogStore interface {
	Append(ctx context.Context, entry domain.LogEntry) error
	Recent(ctx context.Context, n int) ([]domain.LogEntry, error)
	Prune(ctx context.Context) (int, error)
}

type EventLister interface {
	Events() []domain.ScheduledEvent
}
