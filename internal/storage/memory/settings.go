// Package memory provides process-local implementations of the settings
// store and content repository, used in ephemeral mode and in tests.
package memory

import (
	"context"
	"sync"
)

type Settings struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewSettings() *Settings {
	return &Settings{values: make(map[string][]byte)}
}

func (s *Settings) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (s *Settings) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), value...)
	return nil
}
