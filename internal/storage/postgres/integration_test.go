//go:build integration

package postgres

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"article_sync/internal/domain"
	"article_sync/migrations"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
	logger    *slog.Logger
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db

	applied, err := Migrate(s.ctx, s.db, migrations.FS, s.logger)
	s.Require().NoError(err)
	s.Equal(2, applied)
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM article_links")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM articles")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM media")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM settings")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func ptr[T any](v T) *T {
	return &v
}

func (s *PostgresIntegrationSuite) createArticle(store *ArticleStore, sourceURL string, externalID int64) int64 {
	article := &domain.ImportedArticle{
		Title:       "Article",
		Content:     "<p>Body</p>",
		PublishedAt: time.Now().UTC().Truncate(time.Microsecond),
		AuthorID:    1,
	}
	id, err := store.Create(s.ctx, article)
	s.Require().NoError(err)

	err = store.RecordLink(s.ctx, id, domain.ArticleLink{
		ExternalID:  externalID,
		SourceURL:   sourceURL,
		OriginalURL: sourceURL + "/article",
	})
	s.Require().NoError(err)
	return id
}

func (s *PostgresIntegrationSuite) TestMigrate_IsIdempotent() {
	applied, err := Migrate(s.ctx, s.db, migrations.FS, s.logger)
	s.NoError(err)
	s.Equal(0, applied)
}

func (s *PostgresIntegrationSuite) TestArticleStore_CreateAndGet() {
	store := NewArticleStore(s.db)
	published := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	article := &domain.ImportedArticle{
		Title:       "Test Article",
		Content:     "<p>Body</p>",
		PublishedAt: published,
		AuthorID:    1,
		CategoryID:  ptr(4),
	}
	id, err := store.Create(s.ctx, article)
	s.Require().NoError(err)
	s.Greater(id, int64(0))

	err = store.RecordLink(s.ctx, id, domain.ArticleLink{
		ExternalID:  123,
		SourceURL:   "https://a.example",
		OriginalURL: "https://a.example/hello",
	})
	s.Require().NoError(err)

	got, err := store.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(id, got.LocalID)
	s.Equal(int64(123), got.ExternalID)
	s.Equal("https://a.example", got.SourceURL)
	s.Equal("https://a.example/hello", got.OriginalURL)
	s.Equal("Test Article", got.Title)
	s.True(published.Equal(got.PublishedAt))
	s.Require().NotNil(got.CategoryID)
	s.Equal(4, *got.CategoryID)
	s.Nil(got.ThumbnailID)
}

func (s *PostgresIntegrationSuite) TestArticleStore_FindByExternalID() {
	store := NewArticleStore(s.db)
	id := s.createArticle(store, "https://a.example", 100)

	found, ok, err := store.FindByExternalID(s.ctx, "https://a.example", 100)
	s.NoError(err)
	s.True(ok)
	s.Equal(id, found)

	_, ok, err = store.FindByExternalID(s.ctx, "https://b.example", 100)
	s.NoError(err)
	s.False(ok)

	_, ok, err = store.FindByExternalID(s.ctx, "https://a.example", 999)
	s.NoError(err)
	s.False(ok)
}

func (s *PostgresIntegrationSuite) TestArticleStore_RecordLink_RejectsDuplicate() {
	store := NewArticleStore(s.db)
	s.createArticle(store, "https://a.example", 7)

	other, err := store.Create(s.ctx, &domain.ImportedArticle{Title: "Again", PublishedAt: time.Now(), AuthorID: 1})
	s.Require().NoError(err)

	err = store.RecordLink(s.ctx, other, domain.ArticleLink{ExternalID: 7, SourceURL: "https://a.example"})
	s.ErrorIs(err, ErrDuplicateLink)
}

func (s *PostgresIntegrationSuite) TestArticleStore_SetThumbnail() {
	articles := NewArticleStore(s.db)
	media := NewMediaStore(s.db)
	id := s.createArticle(articles, "https://a.example", 1)

	mediaID, err := media.Create(s.ctx, &domain.MediaAsset{
		Filename:  "photo.jpg",
		SourceURL: "https://a.example/photo.jpg",
		MimeType:  "image/jpeg",
		Data:      []byte{0xff, 0xd8},
	})
	s.Require().NoError(err)

	s.Require().NoError(articles.SetThumbnail(s.ctx, id, mediaID))

	got, err := articles.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Require().NotNil(got.ThumbnailID)
	s.Equal(mediaID, *got.ThumbnailID)

	s.Error(articles.SetThumbnail(s.ctx, id+1000, mediaID))
}

func (s *PostgresIntegrationSuite) TestMediaStore_CreateIsIdempotentByFilename() {
	store := NewMediaStore(s.db)
	asset := &domain.MediaAsset{Filename: "a.png", SourceURL: "https://a.example/a.png", MimeType: "image/png", Data: []byte{1}}

	first, err := store.Create(s.ctx, asset)
	s.Require().NoError(err)
	second, err := store.Create(s.ctx, asset)
	s.Require().NoError(err)
	s.Equal(first, second)

	found, ok, err := store.FindByFilename(s.ctx, "a.png")
	s.NoError(err)
	s.True(ok)
	s.Equal(first, found)

	_, ok, err = store.FindByFilename(s.ctx, "b.png")
	s.NoError(err)
	s.False(ok)
}

func (s *PostgresIntegrationSuite) TestMediaStore_UpdateMetadata() {
	store := NewMediaStore(s.db)
	id, err := store.Create(s.ctx, &domain.MediaAsset{Filename: "c.jpg", Data: []byte{1}})
	s.Require().NoError(err)

	s.Require().NoError(store.UpdateMetadata(s.ctx, id, "Alt", "<p>Caption</p>"))

	got, err := store.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("Alt", got.AltText)
	s.Equal("<p>Caption</p>", got.Description)
	s.Equal([]byte{1}, got.Data)
}

func (s *PostgresIntegrationSuite) TestSettingsStore_GetSet() {
	store := NewSettingsStore(s.db)

	value, err := store.Get(s.ctx, "sources")
	s.NoError(err)
	s.Nil(value)

	s.Require().NoError(store.Set(s.ctx, "sources", []byte(`[{"url":"https://a.example"}]`)))
	s.Require().NoError(store.Set(s.ctx, "sources", []byte(`[{"url":"https://b.example"}]`)))

	value, err = store.Get(s.ctx, "sources")
	s.NoError(err)
	s.JSONEq(`[{"url":"https://b.example"}]`, string(value))
}

func (s *PostgresIntegrationSuite) TestAuthorDirectory_CanPublish() {
	authors := NewAuthorDirectory(s.db)

	ok, err := authors.CanPublish(s.ctx, 1)
	s.NoError(err)
	s.True(ok)

	ok, err = authors.CanPublish(s.ctx, 4242)
	s.NoError(err)
	s.False(ok)
}

func (s *PostgresIntegrationSuite) TestTransaction_Commit() {
	tm := NewTransactionManager(s.db)
	store := NewArticleStore(s.db)

	var id int64
	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		var err error
		id, err = store.Create(ctx, &domain.ImportedArticle{Title: "Tx", PublishedAt: time.Now(), AuthorID: 1})
		if err != nil {
			return err
		}
		return store.RecordLink(ctx, id, domain.ArticleLink{ExternalID: 999, SourceURL: "https://a.example"})
	})
	s.NoError(err)

	found, ok, err := store.FindByExternalID(s.ctx, "https://a.example", 999)
	s.NoError(err)
	s.True(ok)
	s.Equal(id, found)
}

func (s *PostgresIntegrationSuite) TestTransaction_RollbackOnLinkFailure() {
	tm := NewTransactionManager(s.db)
	store := NewArticleStore(s.db)
	s.createArticle(store, "https://a.example", 888)

	var before int
	s.Require().NoError(s.db.GetContext(s.ctx, &before, "SELECT COUNT(*) FROM articles"))

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		id, err := store.Create(ctx, &domain.ImportedArticle{Title: "Dup", PublishedAt: time.Now(), AuthorID: 1})
		if err != nil {
			return err
		}
		return store.RecordLink(ctx, id, domain.ArticleLink{ExternalID: 888, SourceURL: "https://a.example"})
	})
	s.True(errors.Is(err, ErrDuplicateLink))

	var after int
	s.Require().NoError(s.db.GetContext(s.ctx, &after, "SELECT COUNT(*) FROM articles"))
	s.Equal(before, after)
}

func (s *PostgresIntegrationSuite) TestTransaction_NestedCallsShareTransaction() {
	tm := NewTransactionManager(s.db)
	store := NewArticleStore(s.db)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		outer := TxFromContext(ctx)
		s.Require().NotNil(outer)

		if err := tm.WithTransaction(ctx, func(inner context.Context) error {
			s.Same(outer, TxFromContext(inner))
			_, err := store.Create(inner, &domain.ImportedArticle{Title: "Nested", PublishedAt: time.Now(), AuthorID: 1})
			return err
		}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	s.EqualError(err, "abort")

	var count int
	s.Require().NoError(s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM articles WHERE title = 'Nested'"))
	s.Zero(count)
}
