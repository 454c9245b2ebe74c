package service

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"article_sync/internal/domain"
	"article_sync/internal/sanitize"
)

// Layouts seen in feed timestamps. Values without an offset are UTC.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ArticleImporter turns remote articles into local ones.
type ArticleImporter struct {
	dedup     *Deduplicator
	articles  ArticleStore
	txManager TransactionManager
	media     MediaAttacher
	publisher Publisher
	now       func() time.Time
	logger    *slog.Logger
}

func NewArticleImporter(
	dedup *Deduplicator,
	articles ArticleStore,
	txManager TransactionManager,
	media MediaAttacher,
	publisher Publisher,
	logger *slog.Logger,
) *ArticleImporter {
	return &ArticleImporter{
		dedup:     dedup,
		articles:  articles,
		txManager: txManager,
		media:     media,
		publisher: publisher,
		now:       time.Now,
		logger:    logger.With("component", "importer"),
	}
}

func (im *ArticleImporter) BeginRun(sourceURL string) {
	im.dedup.Reset(sourceURL)
}

// ImportOne persists remote unless it was imported before. Persistence
// failures are returned as *domain.ImportError.
func (im *ArticleImporter) ImportOne(ctx context.Context, remote domain.RemoteArticle, opts domain.ImportOptions) (domain.Outcome, error) {
	_, found, err := im.dedup.Exists(ctx, opts.SourceURL, remote.ExternalID)
	if err != nil {
		return 0, &domain.ImportError{ExternalID: remote.ExternalID, Reason: err}
	}
	if found {
		return domain.OutcomeSkipped, nil
	}

	article := im.build(remote, opts)

	err = im.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		id, err := im.articles.Create(txCtx, article)
		if err != nil {
			return fmt.Errorf("create article: %w", err)
		}
		article.LocalID = id

		link := domain.ArticleLink{
			ExternalID:  remote.ExternalID,
			SourceURL:   opts.SourceURL,
			OriginalURL: article.OriginalURL,
		}
		if err := im.articles.RecordLink(txCtx, id, link); err != nil {
			return fmt.Errorf("record link: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, &domain.ImportError{ExternalID: remote.ExternalID, Reason: err}
	}

	im.dedup.Remember(opts.SourceURL, remote.ExternalID, article.LocalID)

	if remote.FeaturedMedia != nil && im.media != nil {
		if thumbnailID, ok := im.media.Attach(ctx, remote.FeaturedMedia, article.LocalID); ok {
			article.ThumbnailID = &thumbnailID
		}
	}

	im.logger.Debug("article imported",
		"source", opts.SourceURL,
		"external_id", remote.ExternalID,
		"id", article.LocalID,
	)

	if im.publisher != nil {
		if err := im.publisher.Publish(ctx, article); err != nil {
			im.logger.Warn("failed to publish article event",
				"id", article.LocalID,
				"error", err,
			)
		}
	}

	return domain.OutcomeImported, nil
}

func (im *ArticleImporter) build(remote domain.RemoteArticle, opts domain.ImportOptions) *domain.ImportedArticle {
	originalURL := originalLink(remote, opts.SourceURL)

	content := sanitize.HTML(remote.HTMLContent)
	if originalURL != "" {
		content += "\n" + attribution(originalURL, opts.SourceURL)
	}

	article := &domain.ImportedArticle{
		ExternalID:  remote.ExternalID,
		SourceURL:   opts.SourceURL,
		OriginalURL: originalURL,
		Title:       sanitize.Text(remote.Title),
		Content:     content,
		PublishedAt: im.publishedAt(remote),
		AuthorID:    opts.AuthorID,
	}
	if opts.CategoryID > 0 {
		category := opts.CategoryID
		article.CategoryID = &category
	}
	return article
}

// publishedAt prefers the GMT timestamp, then the site-local one, then now.
func (im *ArticleImporter) publishedAt(remote domain.RemoteArticle) time.Time {
	if t, ok := parseTime(remote.PublishedAtGMT); ok {
		return t
	}
	if t, ok := parseTime(remote.PublishedAt); ok {
		return t
	}
	return im.now().UTC()
}

func parseTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func originalLink(remote domain.RemoteArticle, sourceURL string) string {
	if u, err := url.Parse(remote.CanonicalLink); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return remote.CanonicalLink
	}
	if remote.Slug != "" {
		return strings.TrimRight(sourceURL, "/") + "/" + url.PathEscape(remote.Slug)
	}
	return ""
}

func attribution(originalURL, sourceURL string) string {
	host := sourceURL
	if u, err := url.Parse(sourceURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return fmt.Sprintf(
		`<p class="article-source-attribution">Source: <a href="%s" target="_blank" rel="noopener noreferrer">%s</a></p>`,
		html.EscapeString(originalURL),
		html.EscapeString(host),
	)
}
