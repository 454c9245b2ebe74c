package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"article_sync/internal/domain"
)

const uniqueViolation = "23505"

// ErrDuplicateLink is returned when a (source, external id) pair is already
// linked to an article.
var ErrDuplicateLink = errors.New("article already imported")

type ArticleStore struct {
	db *sqlx.DB
}

func NewArticleStore(db *sqlx.DB) *ArticleStore {
	return &ArticleStore{db: db}
}

func (s *ArticleStore) Create(ctx context.Context, article *domain.ImportedArticle) (int64, error) {
	query := `
		INSERT INTO articles (title, content, published_at, author_id, category_id, thumbnail_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		article.Title,
		article.Content,
		article.PublishedAt,
		article.AuthorID,
		article.CategoryID,
		article.ThumbnailID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert article: %w", err)
	}
	return id, nil
}

func (s *ArticleStore) RecordLink(ctx context.Context, articleID int64, link domain.ArticleLink) error {
	query := `
		INSERT INTO article_links (article_id, source_url, external_id, original_url)
		VALUES ($1, $2, $3, $4)`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		articleID,
		link.SourceURL,
		link.ExternalID,
		link.OriginalURL,
	)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s#%d", ErrDuplicateLink, link.SourceURL, link.ExternalID)
	}
	if err != nil {
		return fmt.Errorf("insert article link: %w", err)
	}
	return nil
}

func (s *ArticleStore) FindByExternalID(ctx context.Context, sourceURL string, externalID int64) (int64, bool, error) {
	var id int64
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &id,
		"SELECT article_id FROM article_links WHERE source_url = $1 AND external_id = $2",
		sourceURL, externalID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (s *ArticleStore) SetThumbnail(ctx context.Context, articleID, mediaID int64) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		"UPDATE articles SET thumbnail_id = $2 WHERE id = $1",
		articleID, mediaID,
	)
	if err != nil {
		return fmt.Errorf("update thumbnail: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("article %d not found", articleID)
	}
	return nil
}

// Get loads an article together with its link metadata.
func (s *ArticleStore) Get(ctx context.Context, id int64) (*domain.ImportedArticle, error) {
	query := `
		SELECT a.id, l.external_id, l.source_url, l.original_url, a.title, a.content,
			a.published_at, a.author_id, a.category_id, a.thumbnail_id
		FROM articles a
		JOIN article_links l ON l.article_id = a.id
		WHERE a.id = $1`

	var article domain.ImportedArticle
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &article, query, id); err != nil {
		return nil, err
	}
	return &article, nil
}
