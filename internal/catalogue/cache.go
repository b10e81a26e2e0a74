package catalogue

import (
	"slices"
	"sync"
	"time"

	"bookproxy/internal/metrics"
	"bookproxy/internal/types"
)

const DefaultTTL = 10 * time.Minute

// Cache holds the last filtered catalogue. Writes replace it wholesale.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu         sync.RWMutex
	entries    []types.CatalogueEntry
	capturedAt time.Time
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Cache{ttl: ttl, now: time.Now}
}

// Get returns the cached entries if they are still fresh.
func (c *Cache) Get() ([]types.CatalogueEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.freshLocked() {
		return nil, false
	}

	return slices.Clone(c.entries), true
}

func (c *Cache) Set(entries []types.CatalogueEntry) {
	c.mu.Lock()
	c.entries = slices.Clone(entries)
	c.capturedAt = c.now()
	c.mu.Unlock()

	metrics.CatalogueEntries.Set(float64(len(entries)))
}

func (c *Cache) Fresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.freshLocked()
}

func (c *Cache) freshLocked() bool {
	return len(c.entries) > 0 && c.now().Sub(c.capturedAt) < c.ttl
}
