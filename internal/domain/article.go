package domain

import "time"

// RemoteArticle is one record of a remote feed page.
type RemoteArticle struct {
	ExternalID     int64
	Title          string
	HTMLContent    string
	PublishedAt    string
	PublishedAtGMT string
	CanonicalLink  string
	Slug           string
	FeaturedMedia  *MediaRef
}

// MediaRef points at the featured media of a remote article.
type MediaRef struct {
	SourceURL   string
	AltText     string
	Description string
}

// ImportedArticle is a locally persisted copy of a remote article.
type ImportedArticle struct {
	LocalID     int64     `db:"id" json:"id"`
	ExternalID  int64     `db:"external_id" json:"external_id"`
	SourceURL   string    `db:"source_url" json:"source_url"`
	OriginalURL string    `db:"original_url" json:"original_url"`
	Title       string    `db:"title" json:"title"`
	Content     string    `db:"content" json:"content"`
	PublishedAt time.Time `db:"published_at" json:"published_at"`
	AuthorID    int       `db:"author_id" json:"author_id"`
	CategoryID  *int      `db:"category_id" json:"category_id,omitempty"`
	ThumbnailID *int64    `db:"thumbnail_id" json:"thumbnail_id,omitempty"`
}

// ArticleLink is the linkage metadata the deduplicator reads back.
type ArticleLink struct {
	ExternalID  int64  `db:"external_id"`
	SourceURL   string `db:"source_url"`
	OriginalURL string `db:"original_url"`
}

// MediaAsset is a stored media file.
type MediaAsset struct {
	ID          int64  `db:"id"`
	Filename    string `db:"filename"`
	SourceURL   string `db:"source_url"`
	MimeType    string `db:"mime_type"`
	Data        []byte `db:"data"`
	AltText     string `db:"alt_text"`
	Description string `db:"description"`
}

// ImportOptions carries the per-source settings used while importing.
type ImportOptions struct {
	SourceURL  string
	PostCount  int
	CategoryID int
	AuthorID   int
}

// Outcome of a single article import.
type Outcome int

const (
	OutcomeImported Outcome = iota + 1
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeImported:
		return "imported"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}
