package geocoder

import (
	"sync"

	"github.com/freedomfinance/ticketfire/internal/models"
)

// Cache is the shared, append-only geocoding cache (§3): address query
// string → (lat, lon, provider). Writes tolerate duplicate inserts (on
// conflict, ignore) — grounded on the teacher's mutex-guarded-map
// bookkeeping style in internal/driven/context_manager.go, adapted from
// a per-host context registry to an address-query registry.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]models.CacheEntry
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]models.CacheEntry)}
}

func (c *Cache) Get(query string) (models.CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[query]
	return e, ok
}

// Put tolerates duplicate writes for the same query: the first writer
// wins, later writers are silently ignored, matching the source's
// "on conflict, ignore" cache-save semantics.
func (c *Cache) Put(entry models.CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[entry.Query]; exists {
		return
	}
	c.entries[entry.Query] = entry
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
