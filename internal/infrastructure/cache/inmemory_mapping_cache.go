package cache

import (
	"context"
	"maps"
	"sync"

	"github.com/erp/migrator/internal/domain/migration"
)

// InMemoryMappingCache implements migration.MappingCache with a map guarded by
// a mutex. One instance belongs to one run.
type InMemoryMappingCache struct {
	mu      sync.RWMutex
	entries map[string]migration.TargetID
}

// NewInMemoryMappingCache creates an empty cache
func NewInMemoryMappingCache() *InMemoryMappingCache {
	return &InMemoryMappingCache{
		entries: make(map[string]migration.TargetID),
	}
}

// Put stores id under key unless key is already taken
func (c *InMemoryMappingCache) Put(_ context.Context, key string, id migration.TargetID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		return migration.ErrCacheKeyExists
	}
	c.entries[key] = id
	return nil
}

// Get returns the id stored under key
func (c *InMemoryMappingCache) Get(_ context.Context, key string) (migration.TargetID, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.entries[key]
	return id, ok, nil
}

// Len returns the number of stored keys
func (c *InMemoryMappingCache) Len(_ context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries), nil
}

// Snapshot copies every stored entry
func (c *InMemoryMappingCache) Snapshot(_ context.Context) (map[string]migration.TargetID, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return maps.Clone(c.entries), nil
}

// Ensure InMemoryMappingCache implements MappingCache
var _ migration.MappingCache = (*InMemoryMappingCache)(nil)
