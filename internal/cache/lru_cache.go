package cache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Stats reports cache performance, computed on demand (spec.md §4.2).
type Stats struct {
	Size            int
	Hits            int64
	Misses          int64
	Evictions       int64
	HitRate         float64
	MemoryUsageBytes int64
	AvgAccessTimeNS  int64
}

// node is one doubly-linked-list entry, grounded on
// itsneelabh/gomind's orchestration.lruItem.
type node[V any] struct {
	key            string
	value          V
	createdAt      time.Time
	lastAccessedAt time.Time
	accessCount    int64
	size           int
	prev, next     *node[V]
}

// LRUCache is a generic content-addressed LRU+TTL cache shared by the
// Audit Cache (V = core.Review) and the Prompt Cache (V = string). Entries
// older than maxAge are treated as misses (spec.md §3 CacheEntry lifetime);
// Cleanup enforces maxEntries/maxMemoryBytes down to 80% headroom
// (spec.md §4.2 invariant).
type LRUCache[V any] struct {
	mu             sync.Mutex
	items          map[string]*node[V]
	head, tail     *node[V]
	maxEntries     int
	maxAge         time.Duration
	maxMemoryBytes int64
	memoryUsage    int64

	hits, misses, evictions int64
	accessNSTotal            int64
	accessSamples            int64

	sf singleflight.Group
}

// NewLRUCache builds a cache bounded by entry count, age, and byte budget.
func NewLRUCache[V any](maxEntries int, maxAge time.Duration, maxMemoryBytes int64) *LRUCache[V] {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &LRUCache[V]{
		items:          make(map[string]*node[V]),
		maxEntries:     maxEntries,
		maxAge:         maxAge,
		maxMemoryBytes: maxMemoryBytes,
	}
}

// Get retrieves a value, reporting a miss if absent or expired.
func (c *LRUCache[V]) Get(key string) (V, bool) {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.items[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	if c.maxAge > 0 && time.Since(n.createdAt) > c.maxAge {
		c.removeLocked(n)
		c.misses++
		var zero V
		return zero, false
	}

	n.lastAccessedAt = time.Now()
	n.accessCount++
	c.moveToFrontLocked(n)
	c.hits++
	c.recordAccessLocked(time.Since(start))
	return n.value, true
}

// Has reports presence without affecting recency or stats.
func (c *LRUCache[V]) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.items[key]
	if !ok {
		return false
	}
	if c.maxAge > 0 && time.Since(n.createdAt) > c.maxAge {
		return false
	}
	return true
}

// Set stores value under key with the given byte size, evicting as needed.
func (c *LRUCache[V]) Set(key string, value V, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.items[key]; ok {
		c.memoryUsage -= int64(existing.size)
		existing.value = value
		existing.size = size
		existing.createdAt = time.Now()
		existing.lastAccessedAt = time.Now()
		c.memoryUsage += int64(size)
		c.moveToFrontLocked(existing)
		c.enforceLimitsLocked(false)
		return
	}

	n := &node[V]{
		key:            key,
		value:          value,
		createdAt:      time.Now(),
		lastAccessedAt: time.Now(),
		size:           size,
	}
	c.items[key] = n
	c.addToFrontLocked(n)
	c.memoryUsage += int64(size)
	c.enforceLimitsLocked(false)
}

// GetOrCompute returns the cached value for key, or calls compute exactly
// once across concurrently-racing callers (singleflight) and caches the
// result. This is what makes the cache-idempotence testable property
// (spec.md §8) hold under concurrent submissions, not just sequential ones.
func (c *LRUCache[V]) GetOrCompute(key string, sizeOf func(V) int, compute func() (V, error)) (V, bool, error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check: another goroutine may have populated the cache while we
		// were waiting to enter the singleflight group.
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := compute()
		if err != nil {
			return v, err
		}
		c.Set(key, v, sizeOf(v))
		return v, nil
	})

	v, _ := result.(V)
	return v, false, err
}

// Cleanup evicts expired entries, then LRU entries until both maxEntries
// and maxMemoryBytes are under their 80%-headroom target.
func (c *LRUCache[V]) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictExpiredLocked()
	c.enforceLimitsLocked(true)
}

// Clear removes every entry and resets the list, preserving stats.
func (c *LRUCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*node[V])
	c.head, c.tail = nil, nil
	c.memoryUsage = 0
}

// Stats returns a point-in-time snapshot.
func (c *LRUCache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	var avgNS int64
	if c.accessSamples > 0 {
		avgNS = c.accessNSTotal / c.accessSamples
	}
	return Stats{
		Size:             len(c.items),
		Hits:             c.hits,
		Misses:           c.misses,
		Evictions:        c.evictions,
		HitRate:          hitRate,
		MemoryUsageBytes: c.memoryUsage,
		AvgAccessTimeNS:  avgNS,
	}
}

func (c *LRUCache[V]) recordAccessLocked(d time.Duration) {
	c.accessNSTotal += d.Nanoseconds()
	c.accessSamples++
}

func (c *LRUCache[V]) evictExpiredLocked() {
	if c.maxAge <= 0 {
		return
	}
	now := time.Now()
	for key, n := range c.items {
		if now.Sub(n.createdAt) > c.maxAge {
			c.removeLocked(n)
			_ = key
		}
	}
}

// enforceLimitsLocked evicts LRU entries until the cache is within
// maxEntries and maxMemoryBytes. With toHeadroom set (Cleanup), it keeps
// evicting until the cache is within 80% of both (spec.md §4.2: "eviction
// targets 80% headroom").
func (c *LRUCache[V]) enforceLimitsLocked(toHeadroom bool) {
	entryTarget := (c.maxEntries * 8) / 10
	if entryTarget < 1 {
		entryTarget = 1
	}
	var memTarget int64
	if c.maxMemoryBytes > 0 {
		memTarget = (c.maxMemoryBytes * 8) / 10
	}

	for len(c.items) > c.maxEntries || (c.maxMemoryBytes > 0 && c.memoryUsage > c.maxMemoryBytes) {
		if c.tail == nil {
			break
		}
		c.removeLocked(c.tail)
	}
	if !toHeadroom {
		return
	}
	for len(c.items) > entryTarget && len(c.items) > 0 {
		if c.tail == nil {
			break
		}
		c.removeLocked(c.tail)
	}
	if memTarget > 0 {
		for c.memoryUsage > memTarget && c.tail != nil {
			c.removeLocked(c.tail)
		}
	}
}

func (c *LRUCache[V]) removeLocked(n *node[V]) {
	c.removeFromListLocked(n)
	delete(c.items, n.key)
	c.memoryUsage -= int64(n.size)
	c.evictions++
}

func (c *LRUCache[V]) addToFrontLocked(n *node[V]) {
	n.prev, n.next = nil, c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

func (c *LRUCache[V]) removeFromListLocked(n *node[V]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.prev, n.next = nil, nil
}

func (c *LRUCache[V]) moveToFrontLocked(n *node[V]) {
	if n == c.head {
		return
	}
	c.removeFromListLocked(n)
	c.addToFrontLocked(n)
}
