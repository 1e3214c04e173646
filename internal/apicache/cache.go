// Package apicache caches GET responses of a JSON API in a TTL store and
// drops stale entries when mutating requests succeed.
//
// Read routes are wrapped with Cached, which serves hits straight from the
// store and captures the downstream response on a miss. Mutating routes are
// wrapped with Invalidate, which deletes the entries stored under the given
// tags or matching the given patterns once the mutation reports success.
package apicache

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iTrooz/storefront-cache/internal/cache"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL applies to routes that do not set their own
const DefaultTTL = 300 * time.Second

// Tag groups cache entries that are invalidated together
type Tag string

// Options configures a Cache
type Options struct {
	DefaultTTL time.Duration
}

// Cache is the policy layer around a cache.Store: hit/miss accounting,
// miss collapsing and tag bookkeeping.
type Cache struct {
	store      cache.Store
	defaultTTL time.Duration

	hits   atomic.Uint64
	misses atomic.Uint64

	group singleflight.Group

	// genMu orders stores against invalidations: a store holds it shared
	// from its generation check to the write, an invalidation bumps the
	// generations exclusively before deleting anything.
	genMu  sync.RWMutex
	epoch  uint64
	tagGen map[Tag]uint64

	mu      sync.Mutex
	tagged  map[Tag]map[string]struct{}
	keyTags map[string][]Tag
}

// Stats is the administrative view of a Cache
type Stats struct {
	Keys    int    `json:"keys"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	HitRate string `json:"hitRate"`
}

// New wraps store. The Cache takes ownership of the store's eviction hook.
func New(store cache.Store, opts Options) *Cache {
	ttl := opts.DefaultTTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c := &Cache{
		store:      store,
		defaultTTL: ttl,
		tagGen:     make(map[Tag]uint64),
		tagged:     make(map[Tag]map[string]struct{}),
		keyTags:    make(map[string][]Tag),
	}
	store.OnEvicted(c.untag)
	return c
}

// DefaultTTL returns the TTL used by routes without their own
func (c *Cache) DefaultTTL() time.Duration {
	return c.defaultTTL
}

// Lookup returns the stored response for key and records a hit or a miss
func (c *Cache) Lookup(key string) (*Response, bool) {
	if v, ok := c.store.Get(key); ok {
		if resp, ok := v.(*Response); ok {
			c.hits.Add(1)
			logrus.Debugf("Cache hit for %s", key)
			return resp, true
		}
	}
	c.misses.Add(1)
	logrus.Debugf("Cache miss for %s", key)
	return nil, false
}

// Generation returns a value that changes whenever an invalidation may have
// dropped entries stored under tags. Take it before producing a response and
// pass it to StoreIfUnchanged.
func (c *Cache) Generation(tags ...Tag) uint64 {
	c.genMu.RLock()
	defer c.genMu.RUnlock()
	return c.generationLocked(tags)
}

func (c *Cache) generationLocked(tags []Tag) uint64 {
	gen := c.epoch
	for _, t := range tags {
		gen += c.tagGen[t]
	}
	return gen
}

// Store saves resp under key when it is cacheable and reports whether it did.
// Storing is best-effort: a failure is logged, never returned.
func (c *Cache) Store(key string, resp *Response, ttl time.Duration, tags []Tag) bool {
	return c.StoreIfUnchanged(key, resp, ttl, tags, c.Generation(tags...))
}

// StoreIfUnchanged is Store for a response produced since Generation(tags...)
// returned since. When an invalidation ran in between, the response may
// predate the mutation and is not stored.
func (c *Cache) StoreIfUnchanged(key string, resp *Response, ttl time.Duration, tags []Tag, since uint64) (stored bool) {
	if resp == nil || !resp.Cacheable() {
		if resp != nil {
			logrus.Debugf("Not caching %s (status %d)", key, resp.StatusCode)
		}
		return false
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.genMu.RLock()
	defer c.genMu.RUnlock()
	if c.generationLocked(tags) != since {
		logrus.Debugf("Not caching %s: invalidated while in flight", key)
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("Failed to cache response for %s: %v", key, r)
			stored = false
		}
	}()

	c.tag(key, tags)
	c.store.Set(key, resp, ttl)
	logrus.Debugf("Cached response for %s (ttl %s, tags %v)", key, ttl, tags)
	return true
}

// InvalidateTags deletes every entry stored under one of tags and returns
// how many were deleted.
func (c *Cache) InvalidateTags(tags ...Tag) int {
	c.genMu.Lock()
	for _, t := range tags {
		c.tagGen[t]++
	}
	c.genMu.Unlock()

	var keys []string
	c.mu.Lock()
	for _, t := range tags {
		for k := range c.tagged[t] {
			keys = append(keys, k)
		}
	}
	c.mu.Unlock()

	deleted := 0
	for _, k := range keys {
		// the eviction hook removes k from the index
		if c.store.Delete(k) {
			deleted++
		}
	}
	return deleted
}

// InvalidatePatterns deletes every key matching any of patterns
func (c *Cache) InvalidatePatterns(patterns ...Pattern) int {
	if len(patterns) == 0 {
		return 0
	}

	// patterns may match any key, whatever its tags
	c.genMu.Lock()
	c.epoch++
	c.genMu.Unlock()

	deleted := 0
	for _, k := range c.store.Keys() {
		for _, p := range patterns {
			if p.Match(k) {
				if c.store.Delete(k) {
					deleted++
				}
				break
			}
		}
	}
	return deleted
}

// ClearPattern compiles pattern and deletes every matching key
func (c *Cache) ClearPattern(pattern string) (int, error) {
	p, err := CompilePattern(pattern)
	if err != nil {
		return 0, err
	}
	deleted := c.InvalidatePatterns(p)
	logrus.Infof("Cleared %d cache entries matching %q", deleted, pattern)
	return deleted, nil
}

// ClearAll empties the store and resets hit/miss counters
func (c *Cache) ClearAll() {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	c.epoch++

	c.mu.Lock()
	c.store.Clear()
	c.tagged = make(map[Tag]map[string]struct{})
	c.keyTags = make(map[string][]Tag)
	c.hits.Store(0)
	c.misses.Store(0)
	c.mu.Unlock()
	logrus.Infof("Cleared all cache entries")
}

// Stats returns entry count, counters and hit rate
func (c *Cache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	return Stats{
		Keys:    c.store.Size(),
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate(hits, misses),
	}
}

// Size is the number of live entries
func (c *Cache) Size() int {
	return c.store.Size()
}

func hitRate(hits, misses uint64) string {
	total := hits + misses
	if total == 0 {
		return "0%"
	}
	rate := float64(hits) / float64(total) * 100
	s := strconv.FormatFloat(rate, 'f', 2, 64)
	// 50.00 -> 50, 12.50 -> 12.5
	for s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	if s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	return fmt.Sprintf("%s%%", s)
}

func (c *Cache) tag(key string, tags []Tag) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.untagLocked(key)
	if len(tags) == 0 {
		return
	}
	for _, t := range tags {
		set, ok := c.tagged[t]
		if !ok {
			set = make(map[string]struct{})
			c.tagged[t] = set
		}
		set[key] = struct{}{}
	}
	c.keyTags[key] = append([]Tag(nil), tags...)
}

func (c *Cache) untag(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.untagLocked(key)
}

func (c *Cache) untagLocked(key string) {
	for _, t := range c.keyTags[key] {
		set := c.tagged[t]
		delete(set, key)
		if len(set) == 0 {
			delete(c.tagged, t)
		}
	}
	delete(c.keyTags, key)
}
