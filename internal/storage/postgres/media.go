package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"article_sync/internal/domain"
)

type MediaStore struct {
	db *sqlx.DB
}

func NewMediaStore(db *sqlx.DB) *MediaStore {
	return &MediaStore{db: db}
}

func (s *MediaStore) FindByFilename(ctx context.Context, filename string) (int64, bool, error) {
	var id int64
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &id,
		"SELECT id FROM media WHERE filename = $1", filename)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// Create stores asset. When another import stored the same filename first,
// the existing id is returned.
func (s *MediaStore) Create(ctx context.Context, asset *domain.MediaAsset) (int64, error) {
	query := `
		INSERT INTO media (filename, source_url, mime_type, data, alt_text, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (filename) DO NOTHING
		RETURNING id`

	exec := GetExecutor(ctx, s.db)

	var id int64
	err := exec.QueryRowxContext(ctx, query,
		asset.Filename,
		asset.SourceURL,
		asset.MimeType,
		asset.Data,
		asset.AltText,
		asset.Description,
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		err = exec.QueryRowxContext(ctx,
			"SELECT id FROM media WHERE filename = $1", asset.Filename,
		).Scan(&id)
	}
	if err != nil {
		return 0, fmt.Errorf("insert media: %w", err)
	}
	return id, nil
}

func (s *MediaStore) UpdateMetadata(ctx context.Context, id int64, altText, description string) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		"UPDATE media SET alt_text = $2, description = $3 WHERE id = $1",
		id, altText, description,
	)
	if err != nil {
		return fmt.Errorf("update media metadata: %w", err)
	}
	return nil
}

func (s *MediaStore) Get(ctx context.Context, id int64) (*domain.MediaAsset, error) {
	var asset domain.MediaAsset
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &asset,
		`SELECT id, filename, source_url, mime_type, data, alt_text, description FROM media WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	return &asset, nil
}
