package cache

import (
	"context"
	"sync"
)

// MemoryStorage is an in-process Storage for tests and single-node dev.
// Safe for concurrent use.
type MemoryStorage struct {
	mu          sync.RWMutex
	generations map[string]map[string]Entry
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{generations: make(map[string]map[string]Entry)}
}

func (s *MemoryStorage) Put(_ context.Context, generation, key string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.generations[generation]
	if !ok {
		bucket = make(map[string]Entry)
		s.generations[generation] = bucket
	}
	bucket[key] = entry
	return nil
}

func (s *MemoryStorage) Match(_ context.Context, generation, key string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket, ok := s.generations[generation]
	if !ok {
		return Entry{}, false, nil
	}
	entry, ok := bucket[key]
	return entry, ok, nil
}

func (s *MemoryStorage) Delete(_ context.Context, generation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.generations, generation)
	return nil
}

func (s *MemoryStorage) Generations(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.generations))
	for name := range s.generations {
		names = append(names, name)
	}
	return names, nil
}
