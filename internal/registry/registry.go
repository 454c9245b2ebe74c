// Package registry owns the ordered list of configured sources.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"article_sync/internal/domain"
)

// SourcesKey is the settings key the source list is stored under.
const SourcesKey = "sources"

// SettingsStore is key/value persistence for JSON documents. Get returns
// nil data for a missing key.
type SettingsStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// AuthorDirectory answers whether an account may publish articles.
type AuthorDirectory interface {
	CanPublish(ctx context.Context, authorID int) (bool, error)
}

type Registry struct {
	store           SettingsStore
	authors         AuthorDirectory
	defaultAuthorID int
	logger          *slog.Logger

	mu sync.Mutex
}

func New(store SettingsStore, authors AuthorDirectory, defaultAuthorID int, logger *slog.Logger) *Registry {
	return &Registry{
		store:           store,
		authors:         authors,
		defaultAuthorID: defaultAuthorID,
		logger:          logger.With("component", "registry"),
	}
}

// List returns all sources in registry order.
func (r *Registry) List(ctx context.Context) ([]domain.SourceConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(ctx)
}

// Get resolves a source by URL.
func (r *Registry) Get(ctx context.Context, url string) (domain.SourceConfig, error) {
	sources, err := r.List(ctx)
	if err != nil {
		return domain.SourceConfig{}, err
	}
	if i := indexOf(sources, url); i >= 0 {
		return sources[i], nil
	}
	return domain.SourceConfig{}, fmt.Errorf("%w: %s", domain.ErrSourceNotFound, url)
}

// Add validates, sanitizes and appends a new source.
func (r *Registry) Add(ctx context.Context, candidate domain.SourceConfig) (domain.SourceConfig, error) {
	if err := domain.ValidateURL(candidate.URL); err != nil {
		return domain.SourceConfig{}, fmt.Errorf("%w: %q", err, candidate.URL)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sources, err := r.load(ctx)
	if err != nil {
		return domain.SourceConfig{}, err
	}
	if indexOf(sources, candidate.URL) >= 0 {
		return domain.SourceConfig{}, fmt.Errorf("%w: %s", domain.ErrDuplicateSource, candidate.URL)
	}

	cfg, err := r.sanitize(ctx, candidate)
	if err != nil {
		return domain.SourceConfig{}, err
	}
	cfg.ID = len(sources)
	cfg.LastSyncAt = nil
	sources = append(sources, cfg)

	if err := r.save(ctx, sources); err != nil {
		return domain.SourceConfig{}, err
	}

	r.logger.Info("source added", "url", cfg.URL, "post_count", cfg.PostCount)
	return cfg, nil
}

// Update replaces the settings of an existing source, keeping its position
// and last sync time.
func (r *Registry) Update(ctx context.Context, cfg domain.SourceConfig) (domain.SourceConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sources, err := r.load(ctx)
	if err != nil {
		return domain.SourceConfig{}, err
	}
	i := indexOf(sources, cfg.URL)
	if i < 0 {
		return domain.SourceConfig{}, fmt.Errorf("%w: %s", domain.ErrSourceNotFound, cfg.URL)
	}

	updated, err := r.sanitize(ctx, cfg)
	if err != nil {
		return domain.SourceConfig{}, err
	}
	updated.ID = i
	updated.URL = sources[i].URL
	updated.LastSyncAt = sources[i].LastSyncAt
	sources[i] = updated

	if err := r.save(ctx, sources); err != nil {
		return domain.SourceConfig{}, err
	}
	return updated, nil
}

// Remove deletes a source and renumbers the remaining ones.
func (r *Registry) Remove(ctx context.Context, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sources, err := r.load(ctx)
	if err != nil {
		return err
	}
	i := indexOf(sources, url)
	if i < 0 {
		return fmt.Errorf("%w: %s", domain.ErrSourceNotFound, url)
	}

	sources = append(sources[:i], sources[i+1:]...)
	for j := range sources {
		sources[j].ID = j
	}

	if err := r.save(ctx, sources); err != nil {
		return err
	}

	r.logger.Info("source removed", "url", url, "remaining", len(sources))
	return nil
}

// Touch stamps the last sync time of a source.
func (r *Registry) Touch(ctx context.Context, url string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sources, err := r.load(ctx)
	if err != nil {
		return err
	}
	i := indexOf(sources, url)
	if i < 0 {
		return fmt.Errorf("%w: %s", domain.ErrSourceNotFound, url)
	}

	at = at.UTC()
	sources[i].LastSyncAt = &at
	return r.save(ctx, sources)
}

func (r *Registry) sanitize(ctx context.Context, in domain.SourceConfig) (domain.SourceConfig, error) {
	out := in
	out.URL = strings.TrimRight(strings.TrimSpace(in.URL), "/")

	if out.PostCount == 0 {
		out.PostCount = domain.DefaultPostCount
	}
	out.PostCount = domain.ClampPostCount(out.PostCount)

	if out.CategoryID < 0 {
		out.CategoryID = 0
	}

	authorID, err := r.resolveAuthor(ctx, in.AuthorID)
	if err != nil {
		return domain.SourceConfig{}, err
	}
	out.AuthorID = authorID

	return out, nil
}

func (r *Registry) resolveAuthor(ctx context.Context, authorID int) (int, error) {
	if authorID <= 0 {
		return r.defaultAuthorID, nil
	}
	if r.authors == nil {
		return authorID, nil
	}

	ok, err := r.authors.CanPublish(ctx, authorID)
	if err != nil {
		return 0, fmt.Errorf("check author %d: %w", authorID, err)
	}
	if !ok {
		r.logger.Warn("author cannot publish, using default",
			"author_id", authorID,
			"default_author_id", r.defaultAuthorID,
		)
		return r.defaultAuthorID, nil
	}
	return authorID, nil
}

func (r *Registry) load(ctx context.Context) ([]domain.SourceConfig, error) {
	data, err := r.store.Get(ctx, SourcesKey)
	if err != nil {
		return nil, fmt.Errorf("load sources: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var sources []domain.SourceConfig
	if err := json.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}
	return sources, nil
}

func (r *Registry) save(ctx context.Context, sources []domain.SourceConfig) error {
	if sources == nil {
		sources = []domain.SourceConfig{}
	}
	data, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("encode sources: %w", err)
	}
	if err := r.store.Set(ctx, SourcesKey, data); err != nil {
		return fmt.Errorf("save sources: %w", err)
	}
	return nil
}

func indexOf(sources []domain.SourceConfig, url string) int {
	for i, s := range sources {
		if domain.SameSource(s.URL, url) {
			return i
		}
	}
	return -1
}
