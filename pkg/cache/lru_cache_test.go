package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/snow-ghost/skillforge/pkg/llm"
)

func TestLRUCache(t *testing.T) {
	config := &CacheConfig{
		MaxSize:         10,
		DefaultTTL:      100 * time.Millisecond,
		CleanupInterval: 50 * time.Millisecond,
	}

	cache, err := NewLRUCache(config)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer cache.Close()

	ctx := context.Background()
	key := CacheKey("test-key")
	response := llm.ChatResponse{
		Text:  "test response",
		Model: "test-model",
	}

	cache.Set(ctx, key, response, 0)

	entry, exists, err := cache.Get(ctx, key)
	if err != nil || !exists {
		t.Fatalf("Expected entry to exist, got %v", err)
	}
	if entry.Response.Text != "test response" {
		t.Errorf("Expected 'test response', got %s", entry.Response.Text)
	}
	if entry.AccessCount != 1 {
		t.Errorf("Expected access count 1, got %d", entry.AccessCount)
	}

	stats := cache.Stats()
	if stats.Hits != 1 {
		t.Errorf("Expected 1 hit, got %d", stats.Hits)
	}
	if stats.Misses != 0 {
		t.Errorf("Expected 0 misses, got %d", stats.Misses)
	}
	if stats.HitRate != 1 {
		t.Errorf("Expected hit rate 1, got %v", stats.HitRate)
	}
}

func TestLRUCacheExpiration(t *testing.T) {
	cache, err := NewLRUCache(&CacheConfig{MaxSize: 10, DefaultTTL: time.Hour})
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer cache.Close()

	ctx := context.Background()
	key := CacheKey("short-lived")
	cache.Set(ctx, key, llm.ChatResponse{Text: "x"}, 20*time.Millisecond)

	time.Sleep(40 * time.Millisecond)

	if _, exists, _ := cache.Get(ctx, key); exists {
		t.Error("Expected entry to be expired")
	}
	stats := cache.Stats()
	if stats.Expirations != 1 || stats.Misses != 1 {
		t.Errorf("Expected 1 expiration and 1 miss, got %+v", stats)
	}
}

func TestLRUCacheCleanup(t *testing.T) {
	cache, err := NewLRUCache(&CacheConfig{
		MaxSize:         10,
		DefaultTTL:      10 * time.Millisecond,
		CleanupInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer cache.Close()

	cache.Set(context.Background(), "a", llm.ChatResponse{Text: "a"}, 0)
	time.Sleep(60 * time.Millisecond)

	if cache.Len() != 0 {
		t.Errorf("Expected cleanup to remove expired entries, %d left", cache.Len())
	}
}

func TestLRUCacheEviction(t *testing.T) {
	cache, err := NewLRUCache(&CacheConfig{MaxSize: 3, DefaultTTL: time.Hour})
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer cache.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		cache.Set(ctx, CacheKey(fmt.Sprintf("key-%d", i)), llm.ChatResponse{Text: fmt.Sprintf("response-%d", i)}, 0)
	}

	// touch key-0 so key-1 becomes the least recently used
	cache.Get(ctx, "key-0")
	cache.Set(ctx, "key-3", llm.ChatResponse{Text: "response-3"}, 0)

	if cache.Len() != 3 {
		t.Errorf("Expected 3 entries, got %d", cache.Len())
	}
	if _, exists, _ := cache.Get(ctx, "key-1"); exists {
		t.Error("Expected key-1 to be evicted")
	}
	if _, exists, _ := cache.Get(ctx, "key-0"); !exists {
		t.Error("Expected key-0 to survive")
	}
	if stats := cache.Stats(); stats.Evictions != 1 {
		t.Errorf("Expected 1 eviction, got %d", stats.Evictions)
	}
}

func TestLRUCacheDeleteAndClear(t *testing.T) {
	cache, err := NewLRUCache(&CacheConfig{MaxSize: 10, DefaultTTL: time.Hour})
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer cache.Close()

	ctx := context.Background()
	cache.Set(ctx, "a", llm.ChatResponse{Text: "a"}, 0)
	cache.Set(ctx, "b", llm.ChatResponse{Text: "b"}, 0)

	cache.Delete(ctx, "a")
	if _, exists, _ := cache.Get(ctx, "a"); exists {
		t.Error("Expected a to be deleted")
	}

	cache.Clear()
	if cache.Len() != 0 {
		t.Errorf("Expected empty cache, got %d", cache.Len())
	}
	if err := cache.Close(); err != nil {
		t.Errorf("Expected repeated Close to succeed, got %v", err)
	}
}
