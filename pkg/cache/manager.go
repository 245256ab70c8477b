package cache

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/snow-ghost/skillforge/core"
	"github.com/snow-ghost/skillforge/pkg/llm"
	"github.com/snow-ghost/skillforge/pkg/logging"
	"github.com/snow-ghost/skillforge/pkg/metrics"
)

// CacheManager serves deterministic completions from a Store and
// collapses concurrent duplicates.
type CacheManager struct {
	store        Store
	deduplicator *Deduplicator
	config       *CacheConfig
	logger       *zap.Logger
	metrics      *metrics.PrometheusMetrics
}

// Stats combines store and deduplication statistics.
type Stats struct {
	Cache         CacheStats `json:"cache"`
	Deduplication DedupStats `json:"deduplication"`
}

// NewCacheManager creates a manager over the backend named in config.
func NewCacheManager(ctx context.Context, config *CacheConfig, logger *zap.Logger, m *metrics.PrometheusMetrics) (*CacheManager, error) {
	if config == nil {
		config = DefaultCacheConfig()
	}

	var store Store
	switch config.Backend {
	case "", BackendMemory:
		lru, err := NewLRUCache(config)
		if err != nil {
			return nil, fmt.Errorf("failed to create cache: %w", err)
		}
		store = lru
	case BackendRedis:
		rs, err := NewRedisStore(ctx, config.RedisURL, config)
		if err != nil {
			return nil, fmt.Errorf("failed to create cache: %w", err)
		}
		store = rs
	default:
		return nil, fmt.Errorf("unknown cache backend %q", config.Backend)
	}

	return NewCacheManagerWithStore(store, config, logger, m), nil
}

// NewCacheManagerWithStore creates a manager over an existing store.
func NewCacheManagerWithStore(store Store, config *CacheConfig, logger *zap.Logger, m *metrics.PrometheusMetrics) *CacheManager {
	if config == nil {
		config = DefaultCacheConfig()
	}
	return &CacheManager{
		store:        store,
		deduplicator: NewDeduplicator(),
		config:       config,
		logger:       logging.OrNop(logger),
		metrics:      m,
	}
}

// ExecuteWithCache returns the cached completion for req or calls fn and
// stores its result. Requests with a non-zero temperature bypass the cache.
func (cm *CacheManager) ExecuteWithCache(ctx context.Context, req llm.ChatRequest, fn func() (llm.ChatResponse, error)) (llm.ChatResponse, error) {
	if !Cacheable(req) {
		return fn()
	}

	key, err := GenerateKey(req)
	if err != nil {
		return llm.ChatResponse{}, fmt.Errorf("failed to generate cache key: %w", err)
	}

	entry, ok, err := cm.store.Get(ctx, key)
	if err != nil {
		cm.logger.Warn("cache lookup failed", zap.String("key", string(key)), zap.Error(err))
	}
	if ok {
		cm.deduplicator.RecordHit(key)
		cm.metrics.RecordCacheHit()
		resp := entry.Response
		resp.Cached = true
		return resp, nil
	}
	cm.metrics.RecordCacheMiss()

	return cm.deduplicator.Execute(key, func() (llm.ChatResponse, error) {
		resp, err := fn()
		if err != nil {
			return llm.ChatResponse{}, err
		}
		if err := cm.store.Set(ctx, key, resp, cm.config.DefaultTTL); err != nil {
			cm.logger.Warn("cache store failed", zap.String("key", string(key)), zap.Error(err))
		}
		return resp, nil
	})
}

// Stats returns cache and deduplication statistics
func (cm *CacheManager) Stats() Stats {
	return Stats{Cache: cm.store.Stats(), Deduplication: cm.deduplicator.Totals()}
}

// Close releases the store.
func (cm *CacheManager) Close() error {
	return cm.store.Close()
}

// Wrap returns a client that consults cm before calling client.
func Wrap(client core.LLMClient, cm *CacheManager) core.LLMClient {
	if cm == nil {
		return client
	}
	return core.LLMClientFunc(func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
		return cm.ExecuteWithCache(ctx, req, func() (llm.ChatResponse, error) {
			return client.Chat(ctx, req)
		})
	})
}
