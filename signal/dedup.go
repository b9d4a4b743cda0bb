package signal

import (
	"sync"
	"time"
)

// dedupEntry pairs the insertion time with the signal that claimed the
// fingerprint, so duplicates can reference the original.
type dedupEntry struct {
	insertedAt time.Time
	signalID   string
}

// DedupCache is an atomic check-and-set fingerprint cache: inserting a
// fingerprint returns false (not a duplicate) exactly once, then true for
// duplicateWindow; entries are swept after expiration. Locking the whole
// check-and-set guarantees that two fingerprint-equal signals arriving
// concurrently never both come back as fresh.
type DedupCache struct {
	mu              sync.Mutex
	entries         map[string]dedupEntry
	duplicateWindow time.Duration
	expiration      time.Duration
}

// NewDedupCache builds a cache with the given duplicate window and sweep
// expiration.
func NewDedupCache(duplicateWindow, expiration time.Duration) *DedupCache {
	return &DedupCache{
		entries:         make(map[string]dedupEntry),
		duplicateWindow: duplicateWindow,
		expiration:      expiration,
	}
}

// CheckAndSet atomically checks whether fingerprint is currently a
// duplicate and, if not, records it under signalID. Returns true plus the
// original signal's id if this call observed a duplicate (the fingerprint
// was already present and still inside its duplicate window).
func (c *DedupCache) CheckAndSet(fingerprint, signalID string) (isDuplicate bool, originalID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	entry, exists := c.entries[fingerprint]
	if exists && now.Sub(entry.insertedAt) < c.duplicateWindow {
		return true, entry.signalID
	}

	c.entries[fingerprint] = dedupEntry{insertedAt: now, signalID: signalID}
	return false, ""
}

// IsDuplicate reports whether fingerprint is a duplicate without
// recording it. Prefer CheckAndSet for the actual atomic dedup decision;
// this exists for read-only observability/debugging paths.
func (c *DedupCache) IsDuplicate(fingerprint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, exists := c.entries[fingerprint]
	return exists && time.Since(entry.insertedAt) < c.duplicateWindow
}

// Sweep removes entries older than expiration. Intended to run on a
// background ticker; safe to call concurrently with CheckAndSet.
func (c *DedupCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	now := time.Now()
	for fp, entry := range c.entries {
		if now.Sub(entry.insertedAt) > c.expiration {
			delete(c.entries, fp)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked fingerprints, for metrics/tests.
func (c *DedupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
