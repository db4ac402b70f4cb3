// Package store provides session storage backends for HarvestFlow.
//
// This file implements the Redis-backed session store. Keys are namespaced
// as "hf:session:{id}".
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/harvestflow/harvestflow/internal/models"
)

const redisKeyPrefix = "hf:session:"

// RedisStore persists sessions in Redis with an optional TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed session store and verifies
// connectivity.
func NewRedisStore(opts ...Option) (*RedisStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.RedisAddr == "" {
		slog.Error("RedisStore address not set")
		return nil, fmt.Errorf("redis address not set")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Error("RedisStore ping failed", "error", err, "addr", cfg.RedisAddr)
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	slog.Info("RedisStore initialized", "addr", cfg.RedisAddr, "ttl", cfg.TTL)
	return &RedisStore{client: client, ttl: cfg.TTL}, nil
}

func (s *RedisStore) key(id string) string {
	return redisKeyPrefix + id
}

// GetSession implements Store.
func (s *RedisStore) GetSession(ctx context.Context, id string) (*models.ConversationState, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return unmarshalState(raw)
}

// SaveSession implements Store.
func (s *RedisStore) SaveSession(ctx context.Context, state *models.ConversationState) error {
	raw, err := marshalState(state)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(state.ID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session %s: %w", state.ID, err)
	}
	return nil
}

// DeleteSession implements Store.
func (s *RedisStore) DeleteSession(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	return nil
}

// ListSessionIDs implements Store.
func (s *RedisStore) ListSessionIDs(ctx context.Context) ([]string, error) {
	keys, err := s.client.Keys(ctx, redisKeyPrefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, k[len(redisKeyPrefix):])
	}
	return ids, nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
