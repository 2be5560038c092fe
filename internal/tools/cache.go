package tools

import (
	"strings"
	"sync"
	"time"
)

// DefaultCacheTTL bounds how long an idempotent tool result is served from
// cache.
const DefaultCacheTTL = 5 * time.Minute

// idempotentTools is the built-in set of tool names whose results are safe
// to cache: read-only, side-effect-free within the TTL.
var idempotentTools = map[string]struct{}{
	"Read":                 {},
	"read_file":            {},
	"Glob":                 {},
	"glob_search":          {},
	"Grep":                 {},
	"grep_search":          {},
	"find_definition":      {},
	"analyze_code_quality": {},
	"extract_exports":      {},
}

// IsIdempotentTool reports whether name is in the built-in cacheable set.
func IsIdempotentTool(name string) bool {
	_, ok := idempotentTools[name]
	return ok
}

type cacheEntry struct {
	result    string
	timestamp time.Time
}

// resultCache is the per-registry TTL cache for idempotent tool results.
// Writes are last-writer-wins; all writes for the same key are deterministic.
type resultCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

func newResultCache(ttl time.Duration) *resultCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &resultCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func cacheKey(name string, args map[string]any) string {
	return name + ":" + CanonicalJSON(args)
}

func (c *resultCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.now().Sub(entry.timestamp) > c.ttl {
		delete(c.entries, key)
		return "", false
	}
	return entry.result, true
}

func (c *resultCache) put(key, result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{result: result, timestamp: c.now()}
}

func (c *resultCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// dropTool removes all entries for the named tool, used when a suite
// replacement swaps out a handler.
func (c *resultCache) dropTool(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := name + ":"
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}
