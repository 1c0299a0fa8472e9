package session

import (
	"sync"
	"time"

	"github.com/postlens/agent/internal/types"
)

// Cache is the verdict cache of spec §3/§4.4: keyed by base post id, TTL'd,
// and never holding an Analyzing… placeholder. It is owned exclusively by
// the session Manager.
type Cache struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]types.CacheEntry
}

// NewCache builds a Cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, entries: make(map[string]types.CacheEntry)}
}

// Put stores verdict under baseID, stamped with now. A verdict with label
// Analyzing… is never stored (spec §3).
func (c *Cache) Put(baseID string, verdict types.DetectionVerdict, now time.Time) {
	if verdict.Label == types.LabelAnalyzing {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[baseID] = types.CacheEntry{Verdict: verdict, InsertedAt: now}
}

// Get returns the cached verdict for baseID, if present and not expired as
// of now.
func (c *Cache) Get(baseID string, now time.Time) (types.DetectionVerdict, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[baseID]
	if !ok {
		return types.DetectionVerdict{}, false
	}
	if now.Sub(entry.InsertedAt) > c.ttl {
		delete(c.entries, baseID)
		return types.DetectionVerdict{}, false
	}
	return entry.Verdict, true
}
