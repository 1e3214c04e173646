package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/simplelru"
)

// LRU is a TTL store bounded to a maximum number of entries.
// When full, the least recently used entry is evicted to make room.
type LRU struct {
	mu      sync.Mutex
	lru     *simplelru.LRU
	hook    func(key string)
	evicted []string

	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

type lruEntry struct {
	value     any
	expiresAt time.Time // zero => no TTL
}

func (e *lruEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !e.expiresAt.After(now)
}

// NewLRU creates a bounded store and starts its expiry sweep when
// cleanupInterval > 0.
func NewLRU(maxEntries int, cleanupInterval time.Duration) (*LRU, error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("lru store needs a positive size, got %d", maxEntries)
	}

	l := &LRU{}
	inner, err := simplelru.NewLRU(maxEntries, func(key interface{}, _ interface{}) {
		// called with l.mu held, hooks run after unlock
		l.evicted = append(l.evicted, key.(string))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create lru store: %w", err)
	}
	l.lru = inner

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	if cleanupInterval > 0 {
		l.wg.Add(1)
		go l.expiryLoop(ctx, cleanupInterval)
	}

	return l, nil
}

func (l *LRU) Set(key string, value any, ttl time.Duration) {
	ent := &lruEntry{value: value}
	if ttl > 0 {
		ent.expiresAt = time.Now().Add(ttl)
	}

	l.mu.Lock()
	l.lru.Add(key, ent)
	l.unlockAndNotify()
}

func (l *LRU) Get(key string) (any, bool) {
	l.mu.Lock()
	defer l.unlockAndNotify()

	v, ok := l.lru.Get(key)
	if !ok {
		return nil, false
	}
	ent := v.(*lruEntry)
	if ent.expired(time.Now()) {
		l.lru.Remove(key)
		return nil, false
	}
	return ent.value, true
}

func (l *LRU) Has(key string) bool {
	l.mu.Lock()
	defer l.unlockAndNotify()

	v, ok := l.lru.Peek(key)
	if !ok {
		return false
	}
	if v.(*lruEntry).expired(time.Now()) {
		l.lru.Remove(key)
		return false
	}
	return true
}

func (l *LRU) Delete(key string) bool {
	l.mu.Lock()
	defer l.unlockAndNotify()

	v, ok := l.lru.Peek(key)
	if !ok {
		return false
	}
	live := !v.(*lruEntry).expired(time.Now())
	l.lru.Remove(key)
	return live
}

func (l *LRU) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lru.Purge()
	l.evicted = nil
}

func (l *LRU) Keys() []string {
	l.mu.Lock()
	defer l.unlockAndNotify()

	l.deleteExpiredLocked(time.Now())
	raw := l.lru.Keys()
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, k.(string))
	}
	return keys
}

func (l *LRU) Size() int {
	l.mu.Lock()
	defer l.unlockAndNotify()

	l.deleteExpiredLocked(time.Now())
	return l.lru.Len()
}

func (l *LRU) OnEvicted(fn func(key string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hook = fn
}

// Close stops the expiry sweep. Safe to call multiple times.
func (l *LRU) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	l.cancel()
	l.wg.Wait()
	return nil
}

func (l *LRU) expiryLoop(ctx context.Context, every time.Duration) {
	defer l.wg.Done()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.mu.Lock()
			l.deleteExpiredLocked(now)
			l.unlockAndNotify()
		}
	}
}

func (l *LRU) deleteExpiredLocked(now time.Time) int {
	removed := 0
	for _, k := range l.lru.Keys() {
		v, ok := l.lru.Peek(k)
		if ok && v.(*lruEntry).expired(now) {
			l.lru.Remove(k)
			removed++
		}
	}
	return removed
}

// unlockAndNotify releases l.mu and runs the eviction hook for every key
// removed while it was held.
func (l *LRU) unlockAndNotify() {
	evicted := l.evicted
	l.evicted = nil
	hook := l.hook
	l.mu.Unlock()

	if hook == nil {
		return
	}
	for _, k := range evicted {
		hook(k)
	}
}
