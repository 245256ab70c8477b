package cache

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/snow-ghost/skillforge/core"
	"github.com/snow-ghost/skillforge/pkg/llm"
	"github.com/snow-ghost/skillforge/pkg/metrics"
)

func newTestManager(t *testing.T, m *metrics.PrometheusMetrics) *CacheManager {
	t.Helper()
	manager, err := NewCacheManager(context.Background(), &CacheConfig{
		Backend:    BackendMemory,
		MaxSize:    10,
		DefaultTTL: time.Minute,
	}, nil, m)
	if err != nil {
		t.Fatalf("Failed to create cache manager: %v", err)
	}
	t.Cleanup(func() { manager.Close() })
	return manager
}

func TestCacheManager(t *testing.T) {
	m := metrics.NewPrometheusMetrics(prometheus.NewRegistry())
	manager := newTestManager(t, m)

	req := llm.NewChatRequest("test-model", "classify", "test", 0, 256)

	response, err := manager.ExecuteWithCache(context.Background(), req, func() (llm.ChatResponse, error) {
		return llm.ChatResponse{Text: "test response"}, nil
	})
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if response.Text != "test response" || response.Cached {
		t.Errorf("Expected fresh 'test response', got %+v", response)
	}

	response2, err := manager.ExecuteWithCache(context.Background(), req, func() (llm.ChatResponse, error) {
		t.Error("Function should not be called on cache hit")
		return llm.ChatResponse{}, nil
	})
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if response2.Text != "test response" || !response2.Cached {
		t.Errorf("Expected cached 'test response', got %+v", response2)
	}

	if got := testutil.ToFloat64(m.CacheHitsTotal); got != 1 {
		t.Errorf("Expected 1 cache hit metric, got %v", got)
	}
	if got := testutil.ToFloat64(m.CacheMissesTotal); got != 1 {
		t.Errorf("Expected 1 cache miss metric, got %v", got)
	}

	stats := manager.Stats()
	if stats.Cache.Hits != 1 || stats.Deduplication.CacheHits != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestCacheManagerSkipsSampledRequests(t *testing.T) {
	manager := newTestManager(t, nil)
	req := llm.NewChatRequest("test-model", "", "test", 0.7, 256)

	var calls int32
	for i := 0; i < 2; i++ {
		manager.ExecuteWithCache(context.Background(), req, func() (llm.ChatResponse, error) {
			atomic.AddInt32(&calls, 1)
			return llm.ChatResponse{Text: "sampled"}, nil
		})
	}
	if calls != 2 {
		t.Errorf("Expected 2 provider calls, got %d", calls)
	}
}

func TestCacheManagerDoesNotCacheErrors(t *testing.T) {
	manager := newTestManager(t, nil)
	req := llm.NewChatRequest("test-model", "", "test", 0, 256)
	boom := errors.New("boom")

	_, err := manager.ExecuteWithCache(context.Background(), req, func() (llm.ChatResponse, error) {
		return llm.ChatResponse{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}

	resp, err := manager.ExecuteWithCache(context.Background(), req, func() (llm.ChatResponse, error) {
		return llm.ChatResponse{Text: "ok"}, nil
	})
	if err != nil || resp.Text != "ok" {
		t.Errorf("Expected retry to reach the provider, got %+v %v", resp, err)
	}
}

func TestWrap(t *testing.T) {
	manager := newTestManager(t, nil)

	var calls int32
	client := core.LLMClientFunc(func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
		atomic.AddInt32(&calls, 1)
		return llm.ChatResponse{Text: "echo: " + req.Content(llm.RoleUser)}, nil
	})
	wrapped := Wrap(client, manager)

	for i := 0; i < 3; i++ {
		resp, err := wrapped.Chat(context.Background(), llm.NewChatRequest("m", "", "hello", 0, 16))
		if err != nil || resp.Text != "echo: hello" {
			t.Fatalf("Unexpected response %+v %v", resp, err)
		}
	}
	if calls != 1 {
		t.Errorf("Expected 1 provider call, got %d", calls)
	}
	if Wrap(client, nil) == nil {
		t.Error("Expected client back for nil manager")
	}
}

func TestGenerateKeyIgnoresCaller(t *testing.T) {
	a := llm.NewChatRequest("m", "i", "x", 0, 16)
	b := a
	b.Caller = "teacher"
	b.Metadata = map[string]string{"run": "1"}

	ka, _ := GenerateKey(a)
	kb, _ := GenerateKey(b)
	if ka != kb {
		t.Error("Expected caller and metadata to be excluded from the key")
	}

	c := llm.NewChatRequest("m", "i", "y", 0, 16)
	kc, _ := GenerateKey(c)
	if ka == kc {
		t.Error("Expected different inputs to produce different keys")
	}
}

func TestNewCacheManagerUnknownBackend(t *testing.T) {
	_, err := NewCacheManager(context.Background(), &CacheConfig{Backend: "memcached"}, nil, nil)
	if err == nil {
		t.Error("Expected error for unknown backend")
	}
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("SKILLFORGE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("SKILLFORGE_TEST_REDIS_URL not set")
	}

	ctx := context.Background()
	cfg := DefaultCacheConfig()
	cfg.KeyPrefix = "skillforge:test:"
	store, err := NewRedisStore(ctx, url, cfg)
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	defer store.Close()

	key := CacheKey("redis-key")
	if err := store.Set(ctx, key, llm.ChatResponse{Text: "stored"}, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	entry, ok, err := store.Get(ctx, key)
	if err != nil || !ok || entry.Response.Text != "stored" {
		t.Fatalf("Get: %+v %v %v", entry, ok, err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, key); ok {
		t.Error("Expected miss after delete")
	}
	if stats := store.Stats(); stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}
