// Package store provides the key/value persistence the identity client uses to keep
// sessions across restarts, and the short-lived locks the HTTP backend uses to keep
// one auth mutation in flight per client.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Get when the key does not exist or has expired.
var ErrNotFound = errors.New("key not found")

// Store defines the interface for key/value storage operations
type Store interface {
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
	// SetNX stores the value only if the key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
}

// redisStore implements Store interface using Redis
type redisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis-backed store
func NewRedisStore(addr, password string, db int) Store {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &redisStore{
		client: client,
	}
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) Store {
	return &redisStore{client: client}
}

// Set stores a key-value pair with TTL; a zero TTL keeps the key forever.
func (s *redisStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Get retrieves a value by key
func (s *redisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return value, err
}

// Delete removes a key from the store
func (s *redisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// SetNX is an atomic check-and-set backed by SET NX.
func (s *redisStore) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

// Ping checks connectivity when the store is redis-backed; other stores are always up.
func Ping(ctx context.Context, s Store) error {
	if rs, ok := s.(*redisStore); ok {
		return rs.client.Ping(ctx).Err()
	}
	return nil
}

// Close releases the underlying connection pool, if any.
func Close(s Store) error {
	if rs, ok := s.(*redisStore); ok {
		return rs.client.Close()
	}
	return nil
}
