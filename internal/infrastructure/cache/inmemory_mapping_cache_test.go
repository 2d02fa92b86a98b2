package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/erp/migrator/internal/domain/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryMappingCache_PutGet(t *testing.T) {
	cache := NewInMemoryMappingCache()
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, migration.CacheKey("Customer", "42"), 1001))
	require.NoError(t, cache.Put(ctx, migration.CacheKey("Customer", "99"), 1002))

	id, ok, err := cache.Get(ctx, "Customer_42")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, migration.TargetID(1001), id)

	_, ok, err = cache.Get(ctx, "Customer_7")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := cache.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestInMemoryMappingCache_WriteOnce(t *testing.T) {
	cache := NewInMemoryMappingCache()
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "Item_1", 10))
	err := cache.Put(ctx, "Item_1", 11)
	assert.ErrorIs(t, err, migration.ErrCacheKeyExists)

	id, _, _ := cache.Get(ctx, "Item_1")
	assert.Equal(t, migration.TargetID(10), id)
}

func TestInMemoryMappingCache_ConcurrentPut(t *testing.T) {
	cache := NewInMemoryMappingCache()
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := cache.Put(ctx, "Account_1", migration.TargetID(i)); err == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestInMemoryMappingCache_Snapshot(t *testing.T) {
	cache := NewInMemoryMappingCache()
	ctx := context.Background()
	require.NoError(t, cache.Put(ctx, "Account_1", 5))

	snap, err := cache.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]migration.TargetID{"Account_1": 5}, snap)

	snap["Account_2"] = 6
	n, _ := cache.Len(ctx)
	assert.Equal(t, 1, n)
}
