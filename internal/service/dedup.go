package service

import (
	"context"
	"fmt"
	"sync"
)

type dedupKey struct {
	sourceURL  string
	externalID int64
}

// Deduplicator answers whether a remote article was already imported.
// Positive answers are memoized until the next BeginRun for that source, so
// the answer for a key never flips back to "not found" within a run.
type Deduplicator struct {
	articles ArticleStore

	mu   sync.Mutex
	seen map[dedupKey]int64
}

func NewDeduplicator(articles ArticleStore) *Deduplicator {
	return &Deduplicator{
		articles: articles,
		seen:     make(map[dedupKey]int64),
	}
}

// Exists returns the local id of the article imported from sourceURL under
// externalID.
func (d *Deduplicator) Exists(ctx context.Context, sourceURL string, externalID int64) (int64, bool, error) {
	key := dedupKey{sourceURL: sourceURL, externalID: externalID}

	d.mu.Lock()
	id, ok := d.seen[key]
	d.mu.Unlock()
	if ok {
		return id, true, nil
	}

	id, found, err := d.articles.FindByExternalID(ctx, sourceURL, externalID)
	if err != nil {
		return 0, false, fmt.Errorf("find article by external id: %w", err)
	}
	if found {
		d.Remember(sourceURL, externalID, id)
	}
	return id, found, nil
}

// Remember records an article created during the current run.
func (d *Deduplicator) Remember(sourceURL string, externalID, localID int64) {
	d.mu.Lock()
	d.seen[dedupKey{sourceURL: sourceURL, externalID: externalID}] = localID
	d.mu.Unlock()
}

// Reset forgets memoized answers for one source.
func (d *Deduplicator) Reset(sourceURL string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for k := range d.seen {
		if k.sourceURL == sourceURL {
			delete(d.seen, k)
		}
	}
}
