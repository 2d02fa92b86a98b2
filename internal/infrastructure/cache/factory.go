package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/erp/migrator/internal/domain/migration"
	"github.com/erp/migrator/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// MappingCacheFactory creates the mapping cache of each run based on configuration
type MappingCacheFactory struct {
	cacheConfig           config.CacheConfig
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool

	mu     sync.Mutex
	client *redis.Client
}

// MappingCacheFactoryOption is a functional option for configuring the factory
type MappingCacheFactoryOption func(*MappingCacheFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) MappingCacheFactoryOption {
	return func(f *MappingCacheFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to the in-memory cache when Redis is unavailable
func WithInMemoryFallback(allow bool) MappingCacheFactoryOption {
	return func(f *MappingCacheFactory) {
		f.allowInMemoryFallback = allow
	}
}

// WithRedisClient shares an existing client instead of dialing one
func WithRedisClient(client *redis.Client) MappingCacheFactoryOption {
	return func(f *MappingCacheFactory) {
		f.client = client
	}
}

// NewMappingCacheFactory creates a new factory
func NewMappingCacheFactory(cacheCfg config.CacheConfig, redisCfg config.RedisConfig, opts ...MappingCacheFactoryOption) *MappingCacheFactory {
	f := &MappingCacheFactory{
		cacheConfig:           cacheCfg,
		redisConfig:           redisCfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: cacheCfg.AllowFallback,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Create returns a fresh cache for runID
func (f *MappingCacheFactory) Create(ctx context.Context, runID string) (migration.MappingCache, error) {
	if f.cacheConfig.Backend != BackendRedis {
		return NewInMemoryMappingCache(), nil
	}

	client, err := f.redisClient(ctx)
	if err == nil {
		f.logger.Info("Using Redis mapping cache", zap.String("run_id", runID))
		return NewRedisMappingCache(client, runID,
			WithTTL(f.cacheConfig.TTL),
			WithKeyPrefix(f.cacheConfig.KeyPrefix),
		), nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis mapping cache required but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory mapping cache. "+
		"Workers of the same run will not share references.",
		zap.Error(err),
	)
	return NewInMemoryMappingCache(), nil
}

func (f *MappingCacheFactory) redisClient(ctx context.Context) (*redis.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.client != nil {
		return f.client, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", f.redisConfig.Host, f.redisConfig.Port),
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	f.client = client
	return client, nil
}

// Close closes the Redis client if one was opened
func (f *MappingCacheFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.client == nil {
		return nil
	}
	err := f.client.Close()
	f.client = nil
	return err
}
