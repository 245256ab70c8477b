package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/snow-ghost/skillforge/pkg/llm"
)

func TestDeduplicator(t *testing.T) {
	dedup := NewDeduplicator()
	key := CacheKey("test-key")

	response, err := dedup.Execute(key, func() (llm.ChatResponse, error) {
		return llm.ChatResponse{Text: "test response"}, nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if response.Text != "test response" {
		t.Errorf("Expected 'test response', got %s", response.Text)
	}

	stats := dedup.GetStats(key)
	if stats.Requests != 1 {
		t.Errorf("Expected 1 request, got %d", stats.Requests)
	}
	if stats.Deduplicated != 0 {
		t.Errorf("Expected 0 deduplicated, got %d", stats.Deduplicated)
	}
}

func TestDeduplicatorConcurrent(t *testing.T) {
	dedup := NewDeduplicator()
	key := CacheKey("test-key")

	var calls int32
	var wg sync.WaitGroup
	release := make(chan struct{})

	numRequests := 5
	for i := 0; i < numRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			response, err := dedup.Execute(key, func() (llm.ChatResponse, error) {
				atomic.AddInt32(&calls, 1)
				<-release
				return llm.ChatResponse{Text: "test response"}, nil
			})
			if err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
			if response.Text != "test response" {
				t.Errorf("Expected 'test response', got %s", response.Text)
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls != 1 {
		t.Errorf("Expected a single underlying call, got %d", calls)
	}
	stats := dedup.GetStats(key)
	if stats.Requests != int64(numRequests) {
		t.Errorf("Expected %d requests, got %d", numRequests, stats.Requests)
	}
	if stats.Deduplicated == 0 {
		t.Error("Expected some requests to be deduplicated")
	}
}

func TestDeduplicatorError(t *testing.T) {
	dedup := NewDeduplicator()
	boom := errors.New("boom")

	_, err := dedup.Execute("k", func() (llm.ChatResponse, error) {
		return llm.ChatResponse{}, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("Expected boom, got %v", err)
	}

	dedup.RecordHit("k")
	totals := dedup.Totals()
	if totals.Requests != 2 || totals.CacheHits != 1 {
		t.Errorf("Expected 2 requests and 1 hit, got %+v", totals)
	}

	dedup.Reset()
	if dedup.Totals().Requests != 0 {
		t.Error("Expected stats to be reset")
	}
}
