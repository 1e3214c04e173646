package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is an unbounded TTL store.
// Expired entries are hidden on read and swept by go-cache's janitor.
type Memory struct {
	store           *gocache.Cache
	cleanupInterval time.Duration
}

// NewMemory creates a memory store. cleanupInterval <= 0 disables the janitor:
// expired entries are then only hidden, and OnEvicted never fires for them.
// New never builds one without a janitor.
func NewMemory(cleanupInterval time.Duration) *Memory {
	return &Memory{
		store:           gocache.New(gocache.NoExpiration, cleanupInterval),
		cleanupInterval: cleanupInterval,
	}
}

func (m *Memory) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	m.store.Set(key, value, ttl)
}

func (m *Memory) Get(key string) (any, bool) {
	return m.store.Get(key)
}

func (m *Memory) Has(key string) bool {
	_, found := m.store.Get(key)
	return found
}

func (m *Memory) Delete(key string) bool {
	_, found := m.store.Get(key)
	m.store.Delete(key)
	return found
}

func (m *Memory) Clear() {
	m.store.Flush()
}

func (m *Memory) Keys() []string {
	items := m.store.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	return keys
}

// Size counts live entries only; go-cache's ItemCount includes expired ones.
func (m *Memory) Size() int {
	return len(m.store.Items())
}

func (m *Memory) OnEvicted(fn func(key string)) {
	m.store.OnEvicted(func(key string, _ interface{}) {
		fn(key)
	})
}

// Close drops every entry. The janitor goroutine exits once the store is
// garbage collected.
func (m *Memory) Close() error {
	m.store.Flush()
	return nil
}
