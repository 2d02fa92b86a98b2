package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/migrator/internal/domain/migration"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "migration:"
	defaultCacheTTL  = 24 * time.Hour
	scanBatchSize    = 200
)

// RedisMappingCache implements migration.MappingCache on Redis so that several
// workers of the same run can share it. Keys are scoped to the run and expire,
// so nothing is carried over between runs.
type RedisMappingCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisMappingCacheOption configures a RedisMappingCache
type RedisMappingCacheOption func(*RedisMappingCache)

// WithTTL sets how long entries live
func WithTTL(ttl time.Duration) RedisMappingCacheOption {
	return func(c *RedisMappingCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithKeyPrefix replaces the "migration:" namespace
func WithKeyPrefix(prefix string) RedisMappingCacheOption {
	return func(c *RedisMappingCache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// NewRedisMappingCache creates the cache of one run on an existing client
func NewRedisMappingCache(client *redis.Client, runID string, opts ...RedisMappingCacheOption) *RedisMappingCache {
	c := &RedisMappingCache{
		client: client,
		prefix: defaultKeyPrefix,
		ttl:    defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.prefix = c.prefix + runID + ":"
	return c
}

// Put stores id under key. SETNX keeps the write-once guarantee across workers.
func (c *RedisMappingCache) Put(ctx context.Context, key string, id migration.TargetID) error {
	ok, err := c.client.SetNX(ctx, c.prefix+key, id.String(), c.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to write mapping %s: %w", key, err)
	}
	if !ok {
		return migration.ErrCacheKeyExists
	}
	return nil
}

// Get returns the id stored under key
func (c *RedisMappingCache) Get(ctx context.Context, key string) (migration.TargetID, bool, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read mapping %s: %w", key, err)
	}
	id, err := migration.ParseTargetID(val)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// Len returns the number of keys of the run
func (c *RedisMappingCache) Len(ctx context.Context) (int, error) {
	keys, err := c.keys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Snapshot copies every entry of the run
func (c *RedisMappingCache) Snapshot(ctx context.Context) (map[string]migration.TargetID, error) {
	keys, err := c.keys(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]migration.TargetID, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read mappings: %w", err)
	}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue // expired between SCAN and MGET
		}
		id, err := migration.ParseTargetID(s)
		if err != nil {
			return nil, err
		}
		out[keys[i][len(c.prefix):]] = id
	}
	return out, nil
}

// Clear deletes every key of the run
func (c *RedisMappingCache) Clear(ctx context.Context) error {
	keys, err := c.keys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to clear mappings: %w", err)
	}
	return nil
}

func (c *RedisMappingCache) keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, c.prefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan mappings: %w", err)
	}
	return keys, nil
}

// Ensure RedisMappingCache implements MappingCache
var _ migration.MappingCache = (*RedisMappingCache)(nil)
