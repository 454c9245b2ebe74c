package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"article_sync/internal/domain"
)

type linkKey struct {
	sourceURL  string
	externalID int64
}

// Articles is an in-memory article repository.
type Articles struct {
	mu       sync.RWMutex
	articles map[int64]domain.ImportedArticle
	links    map[linkKey]int64
	nextID   int64
}

func NewArticles() *Articles {
	return &Articles{
		articles: make(map[int64]domain.ImportedArticle),
		links:    make(map[linkKey]int64),
	}
}

func (a *Articles) Create(ctx context.Context, article *domain.ImportedArticle) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.nextID++
	stored := *article
	stored.LocalID = a.nextID
	a.articles[stored.LocalID] = stored

	onRollback(ctx, func() {
		a.mu.Lock()
		delete(a.articles, stored.LocalID)
		a.mu.Unlock()
	})
	return stored.LocalID, nil
}

func (a *Articles) RecordLink(ctx context.Context, articleID int64, link domain.ArticleLink) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.articles[articleID]; !ok {
		return fmt.Errorf("article %d not found", articleID)
	}
	key := linkKey{sourceURL: link.SourceURL, externalID: link.ExternalID}
	if existing, ok := a.links[key]; ok {
		return fmt.Errorf("article %d already linked to %s#%d", existing, link.SourceURL, link.ExternalID)
	}
	a.links[key] = articleID

	onRollback(ctx, func() {
		a.mu.Lock()
		delete(a.links, key)
		a.mu.Unlock()
	})
	return nil
}

func (a *Articles) FindByExternalID(_ context.Context, sourceURL string, externalID int64) (int64, bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	id, ok := a.links[linkKey{sourceURL: sourceURL, externalID: externalID}]
	return id, ok, nil
}

func (a *Articles) SetThumbnail(ctx context.Context, articleID, mediaID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	article, ok := a.articles[articleID]
	if !ok {
		return fmt.Errorf("article %d not found", articleID)
	}
	previous := article.ThumbnailID
	article.ThumbnailID = &mediaID
	a.articles[articleID] = article

	onRollback(ctx, func() {
		a.mu.Lock()
		if current, ok := a.articles[articleID]; ok {
			current.ThumbnailID = previous
			a.articles[articleID] = current
		}
		a.mu.Unlock()
	})
	return nil
}

// Count returns the number of stored articles.
func (a *Articles) Count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.articles)
}

// All returns stored articles ordered by id.
func (a *Articles) All() []domain.ImportedArticle {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]domain.ImportedArticle, 0, len(a.articles))
	for _, article := range a.articles {
		out = append(out, article)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LocalID < out[j].LocalID })
	return out
}

// Media is an in-memory media library.
type Media struct {
	mu         sync.RWMutex
	assets     map[int64]domain.MediaAsset
	byFilename map[string]int64
	nextID     int64
}

func NewMedia() *Media {
	return &Media{
		assets:     make(map[int64]domain.MediaAsset),
		byFilename: make(map[string]int64),
	}
}

func (m *Media) FindByFilename(_ context.Context, filename string) (int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byFilename[filename]
	return id, ok, nil
}

func (m *Media) Create(ctx context.Context, asset *domain.MediaAsset) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byFilename[asset.Filename]; ok {
		return 0, fmt.Errorf("media %q already exists", asset.Filename)
	}
	m.nextID++
	stored := *asset
	stored.ID = m.nextID
	m.assets[stored.ID] = stored
	m.byFilename[stored.Filename] = stored.ID

	onRollback(ctx, func() {
		m.mu.Lock()
		delete(m.assets, stored.ID)
		delete(m.byFilename, stored.Filename)
		m.mu.Unlock()
	})
	return stored.ID, nil
}

func (m *Media) UpdateMetadata(_ context.Context, id int64, altText, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	asset, ok := m.assets[id]
	if !ok {
		return fmt.Errorf("media %d not found", id)
	}
	asset.AltText = altText
	asset.Description = description
	m.assets[id] = asset
	return nil
}

func (m *Media) Get(id int64) (domain.MediaAsset, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	asset, ok := m.assets[id]
	return asset, ok
}

func (m *Media) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.assets)
}

// Authors is a fixed set of accounts allowed to publish.
type Authors struct {
	publishers map[int]bool
}

func NewAuthors(publisherIDs ...int) *Authors {
	a := &Authors{publishers: make(map[int]bool, len(publisherIDs))}
	for _, id := range publisherIDs {
		a.publishers[id] = true
	}
	return a
}

func (a *Authors) CanPublish(_ context.Context, authorID int) (bool, error) {
	return a.publishers[authorID], nil
}
