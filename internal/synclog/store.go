// Package synclog keeps a bounded, newest-first history of sync runs.
package synclog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"article_sync/internal/domain"
)

// LogsKey is the settings key the run history is stored under.
const LogsKey = "sync_logs"

const (
	DefaultMaxEntries = 100
	DefaultMaxAge     = 30 * 24 * time.Hour
)

// SettingsStore is key/value persistence for JSON documents.
type SettingsStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

type Store struct {
	settings   SettingsStore
	maxEntries int
	maxAge     time.Duration
	now        func() time.Time
	logger     *slog.Logger

	mu sync.Mutex
}

func New(settings SettingsStore, maxEntries int, maxAge time.Duration, logger *slog.Logger) *Store {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Store{
		settings:   settings,
		maxEntries: maxEntries,
		maxAge:     maxAge,
		now:        time.Now,
		logger:     logger.With("component", "synclog"),
	}
}

// Append stores entry as the newest record and drops anything beyond the
// entry cap. Missing ID and timestamp are filled in.
func (s *Store) Append(ctx context.Context, entry domain.LogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	entry.Timestamp = entry.Timestamp.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load(ctx)
	if err != nil {
		return err
	}

	entries = append([]domain.LogEntry{entry}, entries...)
	if len(entries) > s.maxEntries {
		entries = entries[:s.maxEntries]
	}

	return s.save(ctx, entries)
}

// Prune removes entries older than the maximum age and re-applies the entry
// cap. It returns the number of removed entries.
func (s *Store) Prune(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load(ctx)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		s.logger.Debug("no logs to clean up")
		return 0, nil
	}

	cutoff := s.now().Add(-s.maxAge)
	kept := make([]domain.LogEntry, 0, len(entries))
	for _, e := range entries {
		if e.Timestamp.After(cutoff) {
			kept = append(kept, e)
		}
	}
	if len(kept) > s.maxEntries {
		kept = kept[:s.maxEntries]
	}

	removed := len(entries) - len(kept)
	if removed == 0 {
		s.logger.Debug("no old logs to remove", "count", len(entries))
		return 0, nil
	}

	if err := s.save(ctx, kept); err != nil {
		return 0, err
	}

	s.logger.Info("pruned sync logs", "removed", removed, "remaining", len(kept))
	return removed, nil
}

// Recent returns the n newest entries; n <= 0 returns all of them.
func (s *Store) Recent(ctx context.Context, n int) ([]domain.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

func (s *Store) load(ctx context.Context) ([]domain.LogEntry, error) {
	data, err := s.settings.Get(ctx, LogsKey)
	if err != nil {
		return nil, fmt.Errorf("load sync logs: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var entries []domain.LogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode sync logs: %w", err)
	}
	return entries, nil
}

func (s *Store) save(ctx context.Context, entries []domain.LogEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode sync logs: %w", err)
	}
	if err := s.settings.Set(ctx, LogsKey, data); err != nil {
		return fmt.Errorf("save sync logs: %w", err)
	}
	return nil
}
