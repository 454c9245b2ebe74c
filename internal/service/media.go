package service

import (
	"context"
	"fmt"
	"log/slog"

	"article_sync/internal/domain"
	"article_sync/internal/sanitize"
	"article_sync/internal/source/media"
)

// MediaImporter attaches featured media to imported articles. Assets are
// keyed by filename so the same remote image is stored once.
type MediaImporter struct {
	media      MediaStore
	articles   ArticleStore
	downloader Downloader
	logger     *slog.Logger
}

func NewMediaImporter(mediaStore MediaStore, articles ArticleStore, downloader Downloader, logger *slog.Logger) *MediaImporter {
	return &MediaImporter{
		media:      mediaStore,
		articles:   articles,
		downloader: downloader,
		logger:     logger.With("component", "media"),
	}
}

// Attach sets the asset behind ref as the article thumbnail. Failures are
// logged and reported as ok=false.
func (m *MediaImporter) Attach(ctx context.Context, ref *domain.MediaRef, articleID int64) (int64, bool) {
	if ref == nil || ref.SourceURL == "" {
		return 0, false
	}

	id, err := m.attach(ctx, ref, articleID)
	if err != nil {
		mediaErr := &domain.MediaError{URL: ref.SourceURL, Reason: err}
		m.logger.Warn("featured media not attached",
			"article_id", articleID,
			"error", mediaErr,
		)
		return 0, false
	}
	return id, true
}

func (m *MediaImporter) attach(ctx context.Context, ref *domain.MediaRef, articleID int64) (int64, error) {
	filename, err := media.Filename(ref.SourceURL)
	if err != nil {
		return 0, err
	}

	existing, found, err := m.media.FindByFilename(ctx, filename)
	if err != nil {
		return 0, fmt.Errorf("find media by filename: %w", err)
	}
	if found {
		if err := m.articles.SetThumbnail(ctx, articleID, existing); err != nil {
			return 0, fmt.Errorf("set thumbnail: %w", err)
		}
		m.logger.Debug("reused media", "filename", filename, "media_id", existing)
		return existing, nil
	}

	asset, err := m.downloader.Download(ctx, ref.SourceURL)
	if err != nil {
		return 0, fmt.Errorf("download: %w", err)
	}
	asset.Filename = filename
	asset.SourceURL = ref.SourceURL

	id, err := m.media.Create(ctx, asset)
	if err != nil {
		return 0, fmt.Errorf("store media: %w", err)
	}

	if err := m.articles.SetThumbnail(ctx, articleID, id); err != nil {
		return 0, fmt.Errorf("set thumbnail: %w", err)
	}

	description := sanitize.HTML(ref.Description)
	if ref.AltText != "" || description != "" {
		if err := m.media.UpdateMetadata(ctx, id, ref.AltText, description); err != nil {
			m.logger.Warn("failed to copy media metadata", "media_id", id, "error", err)
		}
	}

	return id, nil
}
