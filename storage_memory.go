package idsession

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStorage is the process-scoped Storage backend. State written here
// dies with the process, which makes it the analog of tab-scoped storage:
// sessions are not remembered across restarts.
type MemoryStorage struct {
	cache *gocache.Cache
}

// NewMemoryStorage creates an in-process backend. ttl bounds entry
// lifetime; 0 means entries never expire on their own.
func NewMemoryStorage(ttl time.Duration) *MemoryStorage {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &MemoryStorage{
		cache: gocache.New(ttl, 10*time.Minute),
	}
}

// Get implements [Storage].
func (m *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	raw, found := m.cache.Get(key)
	if !found {
		return "", false, nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", false, nil
	}
	return value, true, nil
}

// Set implements [Storage].
func (m *MemoryStorage) Set(_ context.Context, key, value string) error {
	m.cache.Set(key, value, gocache.DefaultExpiration)
	return nil
}

// Delete implements [Storage].
func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}
