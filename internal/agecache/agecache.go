package agecache

import (
	"sync"

	"plex-thumbnails/internal/logging"
	"plex-thumbnails/internal/metrics"
)

// TickThreshold is the number of accesses between sweeps, and the amount each
// rank decays per sweep.
const TickThreshold = 20

type thumbnail struct {
	data []byte
	rank int
}

// Entry is the per-item record. Meta holds whatever the owner needs to find the
// item's source (a file path, a duration, ...) and is never touched by the cache.
type Entry[B comparable, M any] struct {
	Meta       M
	hasMeta    bool
	thumbnails map[B]*thumbnail
}

// Stats is a snapshot of cache occupancy.
type Stats struct {
	Items      int
	Thumbnails int
	Bytes      int64
	Sweeps     int64
	Evictions  int64
}

// Cache is a per-key map of ranked thumbnails. It is safe for concurrent use.
type Cache[K comparable, B comparable, M any] struct {
	name         string
	capacityHint int

	mu        sync.Mutex
	tick      int
	entries   map[K]*Entry[B, M]
	sweeps    int64
	evictions int64
}

// New creates a cache. capacityHint is roughly how many accesses an untouched
// thumbnail survives; name labels the cache's metrics.
func New[K comparable, B comparable, M any](name string, capacityHint int) *Cache[K, B, M] {
	if capacityHint < 0 {
		capacityHint = 0
	}
	return &Cache[K, B, M]{
		name:         name,
		capacityHint: capacityHint,
		entries:      make(map[K]*Entry[B, M]),
	}
}

// CapacityHint returns the hint the cache was created with.
func (c *Cache[K, B, M]) CapacityHint() int {
	return c.capacityHint
}

// Get returns the metadata stored for key. An entry created by Put alone has
// no metadata and is reported as missing.
func (c *Cache[K, B, M]) Get(key K) (M, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || !entry.hasMeta {
		var zero M
		return zero, false
	}
	return entry.Meta, true
}

// Add stores meta for key unless an entry already exists, and returns the
// metadata that ends up in the cache. The first writer wins.
func (c *Cache[K, B, M]) Add(key K, meta M) M {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		if !entry.hasMeta {
			entry.Meta = meta
			entry.hasMeta = true
		}
		return entry.Meta
	}
	c.entries[key] = &Entry[B, M]{Meta: meta, hasMeta: true, thumbnails: make(map[B]*thumbnail)}
	metrics.AgingCacheItems.WithLabelValues(c.name).Set(float64(len(c.entries)))
	return meta
}

// Put stores data for (key, bucket) and counts as one tick. An unknown key gets
// an entry with zero metadata.
func (c *Cache[K, B, M]) Put(key K, bucket B, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		entry = &Entry[B, M]{thumbnails: make(map[B]*thumbnail)}
		c.entries[key] = entry
		metrics.AgingCacheItems.WithLabelValues(c.name).Set(float64(len(c.entries)))
	}

	if _, exists := entry.thumbnails[bucket]; !exists {
		metrics.AgingCacheThumbnails.WithLabelValues(c.name).Inc()
	}
	entry.thumbnails[bucket] = &thumbnail{data: data, rank: c.capacityHint + 1}
	c.touch()
}

// TryGet returns the cached data for (key, bucket). A hit refreshes the
// thumbnail's rank and counts as one tick; a miss does neither.
func (c *Cache[K, B, M]) TryGet(key K, bucket B) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		metrics.AgingCacheLookups.WithLabelValues(c.name, "miss").Inc()
		return nil, false
	}
	thumb, ok := entry.thumbnails[bucket]
	if !ok {
		metrics.AgingCacheLookups.WithLabelValues(c.name, "miss").Inc()
		return nil, false
	}

	metrics.AgingCacheLookups.WithLabelValues(c.name, "hit").Inc()
	thumb.rank = c.capacityHint + 1
	data := thumb.data
	c.touch()
	return data, true
}

// Invalidate forgets everything about key, including its metadata.
func (c *Cache[K, B, M]) Invalidate(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return false
	}
	metrics.AgingCacheThumbnails.WithLabelValues(c.name).Sub(float64(len(entry.thumbnails)))
	delete(c.entries, key)
	metrics.AgingCacheItems.WithLabelValues(c.name).Set(float64(len(c.entries)))
	return true
}

// Clear drops every entry and resets the tick counter.
func (c *Cache[K, B, M]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]*Entry[B, M])
	c.tick = 0
	metrics.AgingCacheItems.WithLabelValues(c.name).Set(0)
	metrics.AgingCacheThumbnails.WithLabelValues(c.name).Set(0)
}

// Stats returns a snapshot of the cache.
func (c *Cache[K, B, M]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{Items: len(c.entries), Sweeps: c.sweeps, Evictions: c.evictions}
	for _, entry := range c.entries {
		s.Thumbnails += len(entry.thumbnails)
		for _, thumb := range entry.thumbnails {
			s.Bytes += int64(len(thumb.data))
		}
	}
	return s
}

// rank reports the current rank of a thumbnail without touching it.
func (c *Cache[K, B, M]) rank(key K, bucket B) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return 0, false
	}
	thumb, ok := entry.thumbnails[bucket]
	if !ok {
		return 0, false
	}
	return thumb.rank, true
}

// touch advances the tick counter and sweeps when it reaches the threshold.
// Callers hold c.mu.
func (c *Cache[K, B, M]) touch() {
	c.tick++
	if c.tick < TickThreshold {
		return
	}
	c.tick = 0
	c.sweep()
}

func (c *Cache[K, B, M]) sweep() {
	evicted := 0
	remaining := 0
	for _, entry := range c.entries {
		for bucket, thumb := range entry.thumbnails {
			thumb.rank -= TickThreshold
			if thumb.rank <= 0 {
				delete(entry.thumbnails, bucket)
				evicted++
				continue
			}
			remaining++
		}
	}

	c.sweeps++
	c.evictions += int64(evicted)
	metrics.AgingCacheSweeps.WithLabelValues(c.name).Inc()
	metrics.AgingCacheEvictions.WithLabelValues(c.name).Add(float64(evicted))
	metrics.AgingCacheThumbnails.WithLabelValues(c.name).Set(float64(remaining))

	if evicted > 0 {
		logging.Debug("agecache[%s]: evicted %d thumbnails, %d remain", c.name, evicted, remaining)
	}
}
