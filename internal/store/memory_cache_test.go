package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInMemoryCache_SetGetDelete(t *testing.T) {
	cache := NewInMemoryCache(10, zap.NewNop())
	defer cache.Close()
	ctx := context.Background()

	_, err := cache.Get(ctx, "ws-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, cache.Set(ctx, "ws-1", []byte(`{"id":"ws-1"}`), time.Minute))
	value, err := cache.Get(ctx, "ws-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"ws-1"}`, string(value))

	require.NoError(t, cache.Delete(ctx, "ws-1"))
	_, err = cache.Get(ctx, "ws-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryCache_Expiry(t *testing.T) {
	cache := NewInMemoryCache(10, zap.NewNop())
	defer cache.Close()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "ws-1", []byte("x"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, err := cache.Get(ctx, "ws-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryCache_BoundedSize(t *testing.T) {
	cache := NewInMemoryCache(2, zap.NewNop())
	defer cache.Close()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, cache.Set(ctx, "b", []byte("2"), time.Minute))
	require.NoError(t, cache.Set(ctx, "c", []byte("3"), time.Minute))
	assert.Equal(t, 2, cache.Size())

	value, err := cache.Get(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, []byte("3"), value)

	// Overwriting an existing key does not evict.
	require.NoError(t, cache.Set(ctx, "c", []byte("4"), time.Minute))
	assert.Equal(t, 2, cache.Size())
}

func TestInMemoryCache_CloseIsIdempotent(t *testing.T) {
	cache := NewInMemoryCache(1, zap.NewNop())
	assert.NotPanics(t, func() {
		cache.Close()
		cache.Close()
	})
}

func TestNoopCache(t *testing.T) {
	var cache Cache = NoopCache{}
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", []byte("v"), time.Minute))
	_, err := cache.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, cache.Delete(ctx, "k"))
}
