// Package dedup implements the broker's deduplication cache (spec §4.8): a
// bounded, time-windowed set of content hashes generalized from the
// insertion-ordered bounded eviction shape of an LRU cache.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/nova-labs/messagemesh/pkg/broker"
)

// Options configures a Cache (§4.15; constructors do not call Validate).
type Options struct {
	Window       time.Duration
	MaxCacheSize int
}

// Validate checks Options against §4.15.
func (o Options) Validate() error {
	if o.Window <= 0 {
		return broker.ErrInvalidOptions("deduplication.window must be positive")
	}
	if o.MaxCacheSize <= 0 {
		return broker.ErrInvalidOptions("deduplication.max_cache_size must be positive")
	}
	return nil
}

// Metrics is a point-in-time snapshot of cache activity.
type Metrics struct {
	TotalChecks     int64
	DuplicatesFound int64
	Evictions       int64
	CurrentSize     int
	HitRate         float64
}

type entry struct {
	hash     string
	insertAt time.Time
}

// Cache is a bounded, time-windowed hash set.
type Cache struct {
	opts Options

	mu      sync.Mutex
	index   map[string]time.Time
	order   []entry
	checks  int64
	dupes   int64
	evicted int64
}

// New constructs a Cache.
func New(opts Options) *Cache {
	return &Cache{opts: opts, index: make(map[string]time.Time)}
}

// HashPayload computes the SHA-256 hex digest of a message payload, the
// canonical hash form IsDuplicate/Add expect.
func HashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// IsDuplicate reports whether hash was Added within the last Window and has
// not since been evicted. Expired entries are swept lazily on every call.
func (c *Cache) IsDuplicate(hash string) bool {
	if strings.TrimSpace(hash) == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks++
	c.sweepExpiredLocked()

	_, ok := c.index[hash]
	if ok {
		c.dupes++
	}
	return ok
}

// Add records hash as seen now. If the cache is at MaxCacheSize, the oldest
// entry (by insertion time) is evicted first.
func (c *Cache) Add(hash string) {
	if strings.TrimSpace(hash) == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepExpiredLocked()

	now := time.Now()
	if _, exists := c.index[hash]; exists {
		c.index[hash] = now
		for i := range c.order {
			if c.order[i].hash == hash {
				c.order[i].insertAt = now
				break
			}
		}
		return
	}

	for len(c.order) >= c.opts.MaxCacheSize {
		c.evictOldestLocked()
	}

	c.index[hash] = now
	c.order = append(c.order, entry{hash: hash, insertAt: now})
}

// sweepExpiredLocked must be called with c.mu held.
func (c *Cache) sweepExpiredLocked() {
	cutoff := time.Now().Add(-c.opts.Window)
	i := 0
	for i < len(c.order) && c.order[i].insertAt.Before(cutoff) {
		delete(c.index, c.order[i].hash)
		i++
	}
	if i > 0 {
		c.order = c.order[i:]
	}
}

// evictOldestLocked must be called with c.mu held and len(c.order) > 0.
func (c *Cache) evictOldestLocked() {
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.index, oldest.hash)
	c.evicted++
}

// Sweep forces an expiry pass, used by a periodic background sweep goroutine
// (Design Note §9's "cooperative scheduled tasks").
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepExpiredLocked()
}

// Metrics returns a snapshot of current cache statistics.
func (c *Cache) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	var hitRate float64
	if c.checks > 0 {
		hitRate = float64(c.dupes) / float64(c.checks)
	}
	return Metrics{
		TotalChecks:     c.checks,
		DuplicatesFound: c.dupes,
		Evictions:       c.evicted,
		CurrentSize:     len(c.order),
		HitRate:         hitRate,
	}
}
