package prompt

import (
	"strings"
	"time"

	"github.com/kestrelcode/auditcore/internal/cache"
)

// KeyInputs are the components hashed together into a Prompt Cache key
// (spec.md §4.7). WorkflowConfigHash, QualityConfigHash, and
// SessionContextHash are optional and included only when the corresponding
// cache.prompt.include* option is set.
type KeyInputs struct {
	Version            string
	TemplateHash        string
	CodeHash             string
	WorkflowConfigHash   string
	QualityConfigHash    string
	SessionContextHash   string
}

// Key computes SHA-256(version ‖ hash(template) ‖ hash(code) [‖ …]),
// omitting empty optional components (spec.md §4.7: "Session context is
// excluded from the key by default").
func Key(in KeyInputs) string {
	var b strings.Builder
	b.WriteString(in.Version)
	b.WriteString(in.TemplateHash)
	b.WriteString(in.CodeHash)
	if in.WorkflowConfigHash != "" {
		b.WriteString(in.WorkflowConfigHash)
	}
	if in.QualityConfigHash != "" {
		b.WriteString(in.QualityConfigHash)
	}
	if in.SessionContextHash != "" {
		b.WriteString(in.SessionContextHash)
	}
	return cache.HashString(b.String())
}

// templateStat tracks per-template hit/miss/time-saved statistics
// (spec.md §4.7: "Per-template hit/miss and time-saved statistics are
// tracked").
type templateStat struct {
	hits, misses int64
	timeSavedNS  int64
}

// Cache is the Prompt Cache: it shares internal/cache.LRUCache's
// eviction machinery with the Audit Cache but is configured with
// independent (typically smaller, shorter-TTL) limits.
type Cache struct {
	lru   *cache.LRUCache[string]
	stats map[string]*templateStat
}

// NewCache builds a Prompt Cache bounded by maxEntries/maxAge/maxMemoryBytes,
// independent of the Audit Cache's own limits.
func NewCache(maxEntries int, maxAge time.Duration, maxMemoryBytes int64) *Cache {
	return &Cache{
		lru:   cache.NewLRUCache[string](maxEntries, maxAge, maxMemoryBytes),
		stats: make(map[string]*templateStat),
	}
}

// Get looks up a rendered prompt by key, recording per-template stats
// keyed by templateHash.
func (c *Cache) Get(key, templateHash string, renderCost time.Duration) (string, bool) {
	start := time.Now()
	v, ok := c.lru.Get(key)
	stat := c.statFor(templateHash)
	if ok {
		stat.hits++
		stat.timeSavedNS += renderCost.Nanoseconds() - time.Since(start).Nanoseconds()
	} else {
		stat.misses++
	}
	return v, ok
}

// Set stores a rendered prompt under key.
func (c *Cache) Set(key, prompt string) {
	c.lru.Set(key, prompt, len(prompt))
}

func (c *Cache) statFor(templateHash string) *templateStat {
	stat, ok := c.stats[templateHash]
	if !ok {
		stat = &templateStat{}
		c.stats[templateHash] = stat
	}
	return stat
}

// TemplateStats reports hit/miss/time-saved counters for one template hash.
type TemplateStats struct {
	Hits        int64
	Misses      int64
	TimeSavedNS int64
}

func (c *Cache) TemplateStats(templateHash string) TemplateStats {
	stat, ok := c.stats[templateHash]
	if !ok {
		return TemplateStats{}
	}
	return TemplateStats{Hits: stat.hits, Misses: stat.misses, TimeSavedNS: stat.timeSavedNS}
}

// Stats returns the underlying LRU cache's overall statistics.
func (c *Cache) Stats() cache.Stats {
	return c.lru.Stats()
}

func (c *Cache) Cleanup() { c.lru.Cleanup() }
