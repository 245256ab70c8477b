package cache

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/snow-ghost/skillforge/pkg/llm"
)

// Deduplicator collapses identical in-flight requests into one provider call
type Deduplicator struct {
	group singleflight.Group
	mu    sync.RWMutex
	stats map[CacheKey]*DedupStats
}

// DedupStats represents deduplication statistics
type DedupStats struct {
	Requests     int64 `json:"requests"`
	Deduplicated int64 `json:"deduplicated"`
	CacheHits    int64 `json:"cache_hits"`
}

// NewDeduplicator creates a new deduplicator
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{
		stats: make(map[CacheKey]*DedupStats),
	}
}

// Execute runs fn once for all concurrent callers sharing key.
func (d *Deduplicator) Execute(key CacheKey, fn func() (llm.ChatResponse, error)) (llm.ChatResponse, error) {
	result, err, shared := d.group.Do(string(key), func() (interface{}, error) {
		return fn()
	})
	d.record(key, shared, false)

	if err != nil {
		return llm.ChatResponse{}, err
	}
	return result.(llm.ChatResponse), nil
}

// RecordHit counts a request served from the cache.
func (d *Deduplicator) RecordHit(key CacheKey) {
	d.record(key, false, true)
}

func (d *Deduplicator) record(key CacheKey, deduplicated, cacheHit bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	stats, exists := d.stats[key]
	if !exists {
		stats = &DedupStats{}
		d.stats[key] = stats
	}

	stats.Requests++
	if deduplicated {
		stats.Deduplicated++
	}
	if cacheHit {
		stats.CacheHits++
	}
}

// GetStats returns deduplication statistics for a key
func (d *Deduplicator) GetStats(key CacheKey) DedupStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if stats, exists := d.stats[key]; exists {
		return *stats
	}
	return DedupStats{}
}

// Totals sums statistics over every key.
func (d *Deduplicator) Totals() DedupStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var total DedupStats
	for _, s := range d.stats {
		total.Requests += s.Requests
		total.Deduplicated += s.Deduplicated
		total.CacheHits += s.CacheHits
	}
	return total
}

// Reset resets all statistics
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stats = make(map[CacheKey]*DedupStats)
}
