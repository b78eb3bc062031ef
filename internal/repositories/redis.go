package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/desertthunder/recents/internal/models"
)

const defaultRedisTimeout = 5 * time.Second

// RedisStore implements [models.CredentialStore] using Redis.
//
// The store interface is synchronous, so each call runs under its own timeout.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	keys    Keys
	timeout time.Duration
}

// NewRedisStore creates a Redis-backed store. Every key is prefixed with prefix.
func NewRedisStore(client *redis.Client, prefix, ns string, timeout time.Duration) *RedisStore {
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}
	return &RedisStore{client: client, prefix: prefix, keys: NewKeys(ns), timeout: timeout}
}

// CheckHealth verifies Redis connectivity
func (s *RedisStore) CheckHealth(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Load() (models.TokenState, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	keys := s.keys.All()
	results, err := s.client.MGet(ctx, s.prefixed(keys)...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return models.TokenState{}, fmt.Errorf("loading credentials: %w", err)
	}

	values := make(map[string]string, len(keys))
	for i, result := range results {
		if str, ok := result.(string); ok {
			values[keys[i]] = str
		}
	}
	return DecodeTokenState(s.keys, values), nil
}

func (s *RedisStore) Save(state models.TokenState) error {
	values := EncodeTokenState(s.keys, state)
	if len(values) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	pipe := s.client.TxPipeline()
	for key, value := range values {
		pipe.Set(ctx, s.prefix+key, value, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.client.Del(ctx, s.prefixed(s.keys.All())...).Err(); err != nil {
		return fmt.Errorf("clearing credentials: %w", err)
	}
	return nil
}

func (s *RedisStore) prefixed(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = s.prefix + k
	}
	return out
}
