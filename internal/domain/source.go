package domain

import (
	"net/url"
	"strings"
	"time"
)

const (
	MinPostCount     = 1
	MaxPostCount     = 100
	DefaultPostCount = 10
)

// SourceConfig is one configured remote site.
type SourceConfig struct {
	ID         int        `json:"id"`
	URL        string     `json:"url"`
	PostCount  int        `json:"post_count"`
	CategoryID int        `json:"category_id"`
	AuthorID   int        `json:"author_id"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
}

// ClampPostCount bounds n to [MinPostCount, MaxPostCount].
func ClampPostCount(n int) int {
	return max(MinPostCount, min(MaxPostCount, n))
}

// NormalizeURL returns the identity form of a source URL: scheme and host
// lower-cased, surrounding whitespace and trailing slashes removed.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimRight(raw, "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return strings.TrimRight(u.String(), "/")
}

// SameSource reports whether two URLs identify the same source.
func SameSource(a, b string) bool {
	return NormalizeURL(a) == NormalizeURL(b)
}

// ValidateURL checks that raw is an absolute http(s) URL with a host.
func ValidateURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidURL
	}
	if u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}
