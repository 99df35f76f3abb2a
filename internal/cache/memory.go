// Package cache holds the built-graph caches used by the knowledge graph
// service: an in-process expiring LRU, Redis, and a two-tier combination.
package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/clinical-kg-server/internal/domain"
)

const defaultMemoryItems = 1000

type memoryEntry struct {
	graph     *domain.KnowledgeGraph
	expiresAt time.Time
}

// MemoryCache is an in-process LRU of built graphs with a global TTL.
// Cached graphs are shared between callers and must be treated as read-only.
type MemoryCache struct {
	lru *expirable.LRU[string, memoryEntry]
	ttl time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Size   int   `json:"size"`
}

// NewMemoryCache creates an LRU holding at most maxItems graphs for ttl each.
func NewMemoryCache(maxItems int, ttl time.Duration) (*MemoryCache, error) {
	if maxItems < 0 {
		return nil, fmt.Errorf("memory cache size must not be negative, got %d", maxItems)
	}
	if maxItems == 0 {
		maxItems = defaultMemoryItems
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &MemoryCache{
		lru: expirable.NewLRU[string, memoryEntry](maxItems, nil, ttl),
		ttl: ttl,
	}, nil
}

// Get returns the cached graph or domain.ErrNotFound.
func (c *MemoryCache) Get(_ context.Context, patientID string) (*domain.KnowledgeGraph, error) {
	entry, ok := c.lru.Get(patientID)
	if ok && time.Now().Before(entry.expiresAt) {
		c.hits.Add(1)
		return entry.graph, nil
	}
	if ok {
		c.lru.Remove(patientID)
	}
	c.misses.Add(1)
	return nil, domain.ErrNotFound
}

// Set stores a graph. A ttl of zero, or one longer than the cache TTL, uses
// the cache TTL.
func (c *MemoryCache) Set(_ context.Context, patientID string, graph *domain.KnowledgeGraph, ttl time.Duration) error {
	if ttl <= 0 || ttl > c.ttl {
		ttl = c.ttl
	}
	c.lru.Add(patientID, memoryEntry{graph: graph, expiresAt: time.Now().Add(ttl)})
	return nil
}

// Delete drops a patient's graph. Deleting a missing key is not an error.
func (c *MemoryCache) Delete(_ context.Context, patientID string) error {
	c.lru.Remove(patientID)
	return nil
}

// Purge empties the cache.
func (c *MemoryCache) Purge() {
	c.lru.Purge()
}

// Stats reports hit/miss counters and the current entry count.
func (c *MemoryCache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   c.lru.Len(),
	}
}
