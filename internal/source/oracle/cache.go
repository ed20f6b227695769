package oracle

import (
	"sync"
	"time"
)

// DefaultTTL is how long a fetched rate is served without refetching.
const DefaultTTL = 60 * time.Second

// PriceCache holds the last successfully fetched rate. It is shared across
// aggregation cycles and safe for concurrent use.
type PriceCache struct {
	mu        sync.RWMutex
	ttl       time.Duration
	value     float64
	updatedAt time.Time
	ok        bool
	now       func() time.Time
}

func NewPriceCache(ttl time.Duration) *PriceCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PriceCache{ttl: ttl, now: time.Now}
}

// Fresh returns the cached rate if it is younger than the TTL.
func (c *PriceCache) Fresh() (float64, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.ok || c.now().Sub(c.updatedAt) >= c.ttl {
		return 0, time.Time{}, false
	}
	return c.value, c.updatedAt, true
}

// Last returns the cached rate regardless of age.
func (c *PriceCache) Last() (float64, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.updatedAt, c.ok
}

// Set stores a freshly fetched rate.
func (c *PriceCache) Set(value float64) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = value
	c.updatedAt = c.now()
	c.ok = true
	return c.updatedAt
}
