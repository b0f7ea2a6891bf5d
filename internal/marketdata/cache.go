package marketdata

import (
	"sync"
	"sync/atomic"
	"time"
)

type cacheEntry struct {
	value     interface{}
	expiresAt time.Time
}

// ttlCache is a thread-safe TTL cache for gateway responses. One entry per
// (data type, symbol, qualifier) key; staleness is checked on read.
type ttlCache struct {
	entries sync.Map // string -> *cacheEntry

	hitCount  int64
	missCount int64
}

func newTTLCache() *ttlCache {
	return &ttlCache{}
}

// get returns the cached value if present and fresh.
func (c *ttlCache) get(key string, now time.Time) (interface{}, bool) {
	if val, ok := c.entries.Load(key); ok {
		entry := val.(*cacheEntry)
		if now.Before(entry.expiresAt) {
			atomic.AddInt64(&c.hitCount, 1)
			return entry.value, true
		}
		c.entries.Delete(key)
	}
	atomic.AddInt64(&c.missCount, 1)
	return nil, false
}

func (c *ttlCache) set(key string, value interface{}, ttl time.Duration, now time.Time) {
	c.entries.Store(key, &cacheEntry{value: value, expiresAt: now.Add(ttl)})
}

// Stats returns hit/miss counters since startup.
func (c *ttlCache) stats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hitCount), atomic.LoadInt64(&c.missCount)
}
