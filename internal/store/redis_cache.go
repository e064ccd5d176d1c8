package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "workspace-panel:"

// RedisCache implements Cache for Redis so several panel replicas share lookups.
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisCache connects to the Redis instance at url (redis://...).
func NewRedisCache(ctx context.Context, url string, logger *zap.Logger) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{
		client: client,
		logger: logger,
	}, nil
}

// Get retrieves a cached value
func (s *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Set stores a value with TTL
func (s *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, redisKeyPrefix+key, value, ttl).Err()
}

// Delete removes a key
func (s *RedisCache) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, redisKeyPrefix+key).Err()
}

// Ping checks the Redis connection
func (s *RedisCache) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *RedisCache) Close() error {
	return s.client.Close()
}
