package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/snow-ghost/skillforge/pkg/llm"
)

// RedisStore keeps completions in Redis so repeated runs share them.
type RedisStore struct {
	rdb        *redis.Client
	prefix     string
	defaultTTL time.Duration
	hits       atomic.Int64
	misses     atomic.Int64
}

// NewRedisStore connects to redisURL and pings it.
func NewRedisStore(ctx context.Context, redisURL string, config *CacheConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewRedisStoreFromClient(rdb, config), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(rdb *redis.Client, config *CacheConfig) *RedisStore {
	if config == nil {
		config = DefaultCacheConfig()
	}
	return &RedisStore{rdb: rdb, prefix: config.KeyPrefix, defaultTTL: config.DefaultTTL}
}

func (s *RedisStore) key(k CacheKey) string { return s.prefix + string(k) }

// Get returns the cached entry, or false on a miss.
func (s *RedisStore) Get(ctx context.Context, key CacheKey) (*CacheEntry, bool, error) {
	raw, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		s.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		s.misses.Add(1)
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		s.misses.Add(1)
		return nil, false, fmt.Errorf("decode cache entry: %w", err)
	}
	entry.Touch()
	s.hits.Add(1)
	return &entry, true, nil
}

// Set stores response under key; expiry is enforced by Redis.
func (s *RedisStore) Set(ctx context.Context, key CacheKey, response llm.ChatResponse, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	now := time.Now()
	raw, err := json.Marshal(CacheEntry{
		Response:     response,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
		LastAccessed: now,
	})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key CacheKey) error {
	return s.rdb.Del(ctx, s.key(key)).Err()
}

// Stats reports hits and misses seen by this process.
func (s *RedisStore) Stats() CacheStats {
	stats := CacheStats{Hits: s.hits.Load(), Misses: s.misses.Load()}
	stats.CalculateHitRate()
	return stats
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
