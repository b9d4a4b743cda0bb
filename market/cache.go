package market

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/HaloHealthAfrica/optionstratv2-sub001/logger"
)

// cacheEntry holds a cached value plus the time it was fetched, so the
// cache can decide between "fresh", "stale but servable" and "expired".
type cacheEntry struct {
	value     interface{}
	fetchedAt time.Time
}

// ttlCache is a generic TTL+coalescing cache: concurrent GetOrFetch
// calls for the same key share one in-flight fetch (via singleflight), and
// on fetch error a stale value up to staleGrace old is served with a
// warning rather than failing the caller outright.
type ttlCache struct {
	mu         sync.RWMutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	staleGrace time.Duration
	group      singleflight.Group
}

func newTTLCache(ttl, staleGrace time.Duration) *ttlCache {
	return &ttlCache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		staleGrace: staleGrace,
	}
}

// GetOrFetch returns the cached value for key if still fresh; otherwise it
// coalesces concurrent fetches for key into a single call to fetch. If
// fetch fails and a stale value within staleGrace exists, that stale value
// is returned instead of the error.
func (c *ttlCache) GetOrFetch(key string, fetch func() (interface{}, error)) (interface{}, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < c.ttl {
		return entry.value, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		val, ferr := fetch()
		if ferr != nil {
			c.mu.RLock()
			stale, staleOK := c.entries[key]
			c.mu.RUnlock()
			if staleOK && time.Since(stale.fetchedAt) <= c.staleGrace {
				logger.Warnf("market: fetch failed for %s, serving stale value (age=%s): %v", key, time.Since(stale.fetchedAt), ferr)
				return stale.value, nil
			}
			return nil, ferr
		}

		c.mu.Lock()
		c.entries[key] = cacheEntry{value: val, fetchedAt: time.Now()}
		c.mu.Unlock()
		return val, nil
	})
	return v, err
}

// Purge drops all entries older than staleGrace, run periodically by
// callers that want to bound memory.
func (c *ttlCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range c.entries {
		if time.Since(v.fetchedAt) > c.staleGrace {
			delete(c.entries, k)
		}
	}
}
