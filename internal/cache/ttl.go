// Package cache provides a process-local, size-bounded TTL cache shared by
// the classifier, orchestrator, search and time-travel layers.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const defaultMaxEntries = 10000

// Entry is a cached value with its creation time and lifetime.
type Entry[V any] struct {
	Value     V
	CreatedAt time.Time
	TTL       time.Duration
}

// Expired reports whether the entry outlived its TTL at now.
func (e Entry[V]) Expired(now time.Time) bool {
	return now.Sub(e.CreatedAt) > e.TTL
}

// Config controls a TTL cache instance.
type Config struct {
	// TTL is the default lifetime of an entry.
	TTL time.Duration
	// MaxEntries bounds the number of live entries. Least recently used
	// entries are dropped first. Default: 10000.
	MaxEntries int
	// Disabled turns every Get into a miss and every Set into a no-op.
	Disabled bool
}

// Stats is a point-in-time view of cache usage.
type Stats struct {
	Name      string  `json:"name"`
	Size      int     `json:"size"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Sets      int64   `json:"sets"`
	Expired   int64   `json:"expired"`
	HitRate   float64 `json:"hit_rate"`
	TTLSecond int64   `json:"ttl_seconds"`
	Enabled   bool    `json:"enabled"`
}

// TTL is a thread-safe key/value cache with lazy expiry. Expired entries are
// never returned and are removed on the access that finds them.
type TTL[V any] struct {
	name string
	cfg  Config

	mu      sync.Mutex
	store   *lru.Cache[string, Entry[V]]
	hits    int64
	misses  int64
	sets    int64
	expired int64

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// New creates a TTL cache. name is used in logs and stats only.
func New[V any](name string, cfg Config) (*TTL[V], error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = defaultMaxEntries
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	store, err := lru.New[string, Entry[V]](cfg.MaxEntries)
	if err != nil {
		return nil, eris.Wrapf(err, "cache: create %s", name)
	}
	return &TTL[V]{
		name:    name,
		cfg:     cfg,
		store:   store,
		nowFunc: time.Now,
	}, nil
}

// Get returns the live value for key.
func (c *TTL[V]) Get(key string) (V, bool) {
	var zero V
	if c.cfg.Disabled {
		return zero, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.store.Get(key)
	if !ok {
		c.misses++
		return zero, false
	}
	if entry.Expired(c.nowFunc()) {
		c.store.Remove(key)
		c.expired++
		c.misses++
		return zero, false
	}
	c.hits++
	return entry.Value, true
}

// Set stores value under key with the default TTL.
func (c *TTL[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.cfg.TTL)
}

// SetWithTTL stores value under key with an explicit lifetime.
func (c *TTL[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	if c.cfg.Disabled {
		return
	}
	if ttl <= 0 {
		ttl = c.cfg.TTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.Add(key, Entry[V]{Value: value, CreatedAt: c.nowFunc(), TTL: ttl})
	c.sets++
}

// Clear drops every entry and resets the counters.
func (c *TTL[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Purge()
	c.hits, c.misses, c.sets, c.expired = 0, 0, 0, 0
	zap.L().Info("cache: cleared", zap.String("cache", c.name))
}

// CleanupExpired removes every expired entry and returns how many were dropped.
func (c *TTL[V]) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFunc()
	removed := 0
	for _, key := range c.store.Keys() {
		entry, ok := c.store.Peek(key)
		if ok && entry.Expired(now) {
			c.store.Remove(key)
			removed++
		}
	}
	c.expired += int64(removed)
	if removed > 0 {
		zap.L().Debug("cache: expired entries removed",
			zap.String("cache", c.name),
			zap.Int("removed", removed),
		)
	}
	return removed
}

// Len returns the number of stored entries, including ones not yet evicted.
func (c *TTL[V]) Len() int {
	return c.store.Len()
}

// Stats returns usage counters.
func (c *TTL[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Name:      c.name,
		Size:      c.store.Len(),
		Hits:      c.hits,
		Misses:    c.misses,
		Sets:      c.sets,
		Expired:   c.expired,
		TTLSecond: int64(c.cfg.TTL.Seconds()),
		Enabled:   !c.cfg.Disabled,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}
