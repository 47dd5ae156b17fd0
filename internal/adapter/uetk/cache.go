package uetk

import (
	"context"
	"sync"

	"github.com/couchcryptid/hydro-ingest-service/internal/domain"
	"github.com/couchcryptid/hydro-ingest-service/internal/observability"
)

// CachedLookup wraps a MetadataLookup with an in-memory LRU cache keyed by
// cadastre id. Only the ids missing from the cache are sent upstream.
type CachedLookup struct {
	inner   domain.MetadataLookup
	cache   *lruCache[domain.PlantMetadata]
	metrics *observability.Metrics
}

// NewCachedLookup creates a cache decorator around a lookup.
func NewCachedLookup(inner domain.MetadataLookup, maxEntries int, metrics *observability.Metrics) *CachedLookup {
	return &CachedLookup{
		inner:   inner,
		cache:   newLRUCache[domain.PlantMetadata](maxEntries),
		metrics: metrics,
	}
}

func (c *CachedLookup) LookupPlants(ctx context.Context, ids []string) (map[string]domain.PlantMetadata, error) {
	out := make(map[string]domain.PlantMetadata, len(ids))
	var misses []string
	for _, id := range ids {
		if m, ok := c.cache.get(id); ok {
			c.metrics.GISCache.WithLabelValues("hit").Inc()
			out[id] = m
			continue
		}
		c.metrics.GISCache.WithLabelValues("miss").Inc()
		misses = append(misses, id)
	}
	if len(misses) == 0 {
		return out, nil
	}

	fetched, err := c.inner.LookupPlants(ctx, misses)
	if err != nil {
		return nil, err
	}
	for id, m := range fetched {
		// Ids absent from the register are not cached so new entries show up.
		c.cache.put(id, m)
		out[id] = m
	}
	return out, nil
}

// lruCache is a small thread-safe LRU cache.
type lruCache[V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry[V]
	head       *entry[V] // most recently used
	tail       *entry[V] // least recently used
}

type entry[V any] struct {
	key   string
	value V
	prev  *entry[V]
	next  *entry[V]
}

func newLRUCache[V any](maxEntries int) *lruCache[V] {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &lruCache[V]{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry[V]),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache[V]) put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry[V]{key: key, value: value}
	c.entries[key] = e
	c.pushFront(e)

	if len(c.entries) > c.maxEntries {
		last := c.tail
		c.unlink(last)
		delete(c.entries, last.key)
	}
}

func (c *lruCache[V]) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache[V]) moveToFront(e *entry[V]) {
	if e == c.head {
		return
	}
	c.unlink(e)
	c.pushFront(e)
}

func (c *lruCache[V]) pushFront(e *entry[V]) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache[V]) unlink(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}
