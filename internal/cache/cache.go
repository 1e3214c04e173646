// Handles in-memory storage of cached API responses
package cache

import (
	"errors"
	"fmt"
	"time"
)

// Store is an expiring key-value store.
// Implementations are safe for concurrent use.
type Store interface {
	// stores value under key, replacing any previous value and its deadline.
	// ttl <= 0 means the entry never expires.
	Set(key string, value any, ttl time.Duration)
	// returns the value if present and not expired
	Get(key string) (any, bool)
	// reports presence without touching recency or counters
	Has(key string) bool
	// removes key, reports whether something was removed. No-op on absent keys
	Delete(key string) bool
	// removes every entry. Eviction hooks are not called
	Clear()
	// snapshot of live keys, order unspecified
	Keys() []string
	// number of live entries
	Size() int
	// registers a hook called after a key is deleted or expires
	OnEvicted(fn func(key string))
	// stops background maintenance
	Close() error
}

// Backend names accepted by New
const (
	BackendMemory = "memory"
	BackendLRU    = "lru"
)

var ErrUnknownBackend = errors.New("unknown cache backend")

// DefaultCleanupInterval is the memory janitor period used when none is set.
// Without a janitor, expired entries never fire eviction hooks.
const DefaultCleanupInterval = time.Minute

// Options selects and tunes a Store implementation
type Options struct {
	Backend         string
	MaxEntries      int
	CleanupInterval time.Duration
}

// New builds the Store described by opts.
// An empty backend picks lru when MaxEntries is set, memory otherwise.
// The memory backend always runs a janitor.
func New(opts Options) (Store, error) {
	backend := opts.Backend
	if backend == "" {
		backend = BackendMemory
		if opts.MaxEntries > 0 {
			backend = BackendLRU
		}
	}

	switch backend {
	case BackendMemory:
		interval := opts.CleanupInterval
		if interval <= 0 {
			interval = DefaultCleanupInterval
		}
		return NewMemory(interval), nil
	case BackendLRU:
		return NewLRU(opts.MaxEntries, opts.CleanupInterval)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
