package idsession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStorageBackend wraps backend failures of the durable storage. The
// machine treats cached state as advisory, so these errors degrade behavior
// (state is re-fetched) rather than failing operations.
var ErrStorageBackend = errors.New("storage backend unavailable")

// RedisStorage is the durable Storage backend: state survives the process,
// which makes it the remember-me mode. All entries carry a TTL so abandoned
// sessions age out of the backend.
type RedisStorage struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStorage wraps an existing client. ttl applies to every key; 0
// falls back to 30 days.
func NewRedisStorage(client *redis.Client, ttl time.Duration) *RedisStorage {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &RedisStorage{client: client, ttl: ttl}
}

// Get implements [Storage].
func (r *RedisStorage) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrStorageBackend, err)
	}
	return value, true, nil
}

// Set implements [Storage].
func (r *RedisStorage) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, key, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageBackend, err)
	}
	return nil
}

// Delete implements [Storage].
func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageBackend, err)
	}
	return nil
}
