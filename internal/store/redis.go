package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const loginFailureTTL = 15 * time.Minute

// RedisStore handles Redis operations for rate limiting and abuse tracking.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying client for the rate limiting middleware.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func loginFailureKey(username string) string {
	return fmt.Sprintf("loginfail:%s", username)
}

// RecordLoginFailure increments the failed-login counter for a username
// and returns the new count. The counter decays after loginFailureTTL.
func (s *RedisStore) RecordLoginFailure(ctx context.Context, username string) (int64, error) {
	key := loginFailureKey(username)
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	s.client.Expire(ctx, key, loginFailureTTL)
	return count, nil
}

// LoginFailures returns the current failed-login count for a username.
func (s *RedisStore) LoginFailures(ctx context.Context, username string) (int64, error) {
	count, err := s.client.Get(ctx, loginFailureKey(username)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return count, err
}

// ResetLoginFailures clears the failed-login counter after a success.
func (s *RedisStore) ResetLoginFailures(ctx context.Context, username string) {
	s.client.Del(ctx, loginFailureKey(username))
}
