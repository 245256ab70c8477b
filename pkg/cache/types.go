package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/snow-ghost/skillforge/pkg/llm"
)

// CacheKey represents a cache key
type CacheKey string

// CacheEntry represents a cached response
type CacheEntry struct {
	Response     llm.ChatResponse `json:"response"`
	CreatedAt    time.Time        `json:"created_at"`
	ExpiresAt    time.Time        `json:"expires_at"`
	AccessCount  int              `json:"access_count"`
	LastAccessed time.Time        `json:"last_accessed"`
}

// IsExpired checks if the cache entry is expired
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// Touch updates the access time and count
func (e *CacheEntry) Touch() {
	e.LastAccessed = time.Now()
	e.AccessCount++
}

// Store is a completion cache backend.
type Store interface {
	Get(ctx context.Context, key CacheKey) (*CacheEntry, bool, error)
	Set(ctx context.Context, key CacheKey, response llm.ChatResponse, ttl time.Duration) error
	Delete(ctx context.Context, key CacheKey) error
	Stats() CacheStats
	Close() error
}

// Backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// CacheConfig holds cache configuration
type CacheConfig struct {
	Enabled         bool          `json:"enabled" koanf:"enabled"`
	Backend         string        `json:"backend" koanf:"backend"`                   // memory or redis
	MaxSize         int           `json:"max_size" koanf:"max_size"`                 // Maximum number of entries
	DefaultTTL      time.Duration `json:"default_ttl" koanf:"default_ttl"`           // Default TTL for entries
	CleanupInterval time.Duration `json:"cleanup_interval" koanf:"cleanup_interval"` // How often to clean expired entries
	RedisURL        string        `json:"redis_url" koanf:"redis_url"`
	KeyPrefix       string        `json:"key_prefix" koanf:"key_prefix"`
}

// DefaultCacheConfig returns a default cache configuration
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Backend:         BackendMemory,
		MaxSize:         1000,
		DefaultTTL:      5 * time.Minute,
		CleanupInterval: 1 * time.Minute,
		KeyPrefix:       "skillforge:completion:",
	}
}

// GenerateKey hashes the parts of a request that determine its completion.
// Caller and metadata are excluded.
func GenerateKey(req llm.ChatRequest) (CacheKey, error) {
	normalized := struct {
		Model       string        `json:"model"`
		Messages    []llm.Message `json:"messages"`
		Temperature float32       `json:"temperature"`
		TopP        float32       `json:"top_p"`
		MaxTokens   int           `json:"max_tokens"`
	}{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	}

	data, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	hash := sha256.Sum256(data)
	return CacheKey(fmt.Sprintf("%x", hash)), nil
}

// Cacheable reports whether a request is deterministic enough to cache.
func Cacheable(req llm.ChatRequest) bool {
	return req.Temperature == 0
}

// CacheStats represents cache statistics
type CacheStats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Size        int     `json:"size"`
	MaxSize     int     `json:"max_size"`
	HitRate     float64 `json:"hit_rate"`
	Evictions   int64   `json:"evictions"`
	Expirations int64   `json:"expirations"`
}

// CalculateHitRate calculates the hit rate
func (s *CacheStats) CalculateHitRate() {
	total := s.Hits + s.Misses
	if total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	} else {
		s.HitRate = 0.0
	}
}
