package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisConfig holds the connection settings for a RedisSource.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisSource reads JSON-encoded values from Redis by stringified key. It is
// a system of record for the query cache, not a second cache layer: it never
// writes, and a missing key is reported as ErrNotFound rather than triggering
// any fallback.
type RedisSource[K comparable, V any] struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisSource connects a new RedisSource, pinging the server to confirm
// connectivity before returning.
func NewRedisSource[K comparable, V any](ctx context.Context, cfg *RedisConfig, logger zerolog.Logger) (*RedisSource[K, V], error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info().Str("redis_address", cfg.Addr).Msg("Successfully connected to Redis.")

	return &RedisSource[K, V]{
		client: rdb,
		logger: logger.With().Str("component", "RedisSource").Logger(),
	}, nil
}

// Fetch retrieves and decodes the value stored under key.
func (s *RedisSource[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	var zero V
	stringKey := fmt.Sprintf("%v", key)

	raw, err := s.client.Get(ctx, stringKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, fmt.Errorf("redis has no value for %s: %w", stringKey, ErrNotFound)
		}
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Unexpected Redis error during fetch.")
		return zero, fmt.Errorf("redis get for %s: %w", stringKey, err)
	}

	var value V
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		s.logger.Error().Err(err).Str("key", stringKey).Msg("Failed to unmarshal value from Redis.")
		return zero, fmt.Errorf("unmarshal redis value for %s: %w", stringKey, err)
	}

	s.logger.Debug().Str("key", stringKey).Msg("Fetched value from Redis.")
	return value, nil
}

// Close closes the Redis client connection.
func (s *RedisSource[K, V]) Close() error {
	s.logger.Info().Msg("Closing Redis client connection...")
	return s.client.Close()
}
