package apicache

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Route is the caching policy of one read route
type Route struct {
	// TTL of stored responses, the cache default when zero
	TTL time.Duration
	// Tags the responses are stored under
	Tags []Tag
	// PerCaller keys entries by credentials as well, for routes whose
	// answer depends on who is asking
	PerCaller bool
}

// Cached returns middleware serving eligible GET requests from the cache.
// Concurrent misses on the same key run the handler once and share its
// response.
func (c *Cache) Cached(route Route) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !Eligible(r) {
				next.ServeHTTP(w, r)
				return
			}

			key := Key(r)
			if route.PerCaller {
				key = CallerKey(r)
			}
			if resp, ok := c.Lookup(key); ok {
				resp.WriteTo(w, CacheHit)
				return
			}

			v, _, shared := c.group.Do(key, func() (any, error) {
				// a flight that finished just before this one may have stored it
				if v, ok := c.store.Get(key); ok {
					if resp, ok := v.(*Response); ok {
						return resp, nil
					}
				}

				gen := c.Generation(route.Tags...)
				rec := newRecorder()
				next.ServeHTTP(rec, r)
				resp := rec.Response()
				c.StoreIfUnchanged(key, resp, route.TTL, route.Tags, gen)
				return resp, nil
			})
			if shared {
				logrus.Debugf("Shared in-flight response for %s", key)
			}

			v.(*Response).WriteTo(w, CacheMiss)
		})
	}
}

// Invalidation lists what a mutating route makes stale
type Invalidation struct {
	Tags     []Tag
	Patterns []Pattern
}

// Invalidate returns middleware that, once the wrapped handler answers with a
// 2xx status, deletes the entries selected by inv. Entries are dropped before
// the status line reaches the client, so a follow-up read cannot observe
// them. Failed mutations leave the cache untouched.
func (c *Cache) Invalidate(inv Invalidation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{
				ResponseWriter: w,
				onSuccess: func() {
					deleted := c.Apply(inv)
					logrus.Infof("Invalidated %d cache entries after %s %s", deleted, r.Method, r.URL.Path)
				},
			}
			next.ServeHTTP(sw, r)
			sw.finish()
		})
	}
}

// Apply runs every tag and pattern of inv and returns how many entries were
// deleted. All of them are applied even when earlier ones match nothing.
func (c *Cache) Apply(inv Invalidation) int {
	deleted := 0
	if len(inv.Tags) > 0 {
		deleted += c.InvalidateTags(inv.Tags...)
	}
	if len(inv.Patterns) > 0 {
		deleted += c.InvalidatePatterns(inv.Patterns...)
	}
	return deleted
}

// statusWriter calls onSuccess right before a 2xx status is written
type statusWriter struct {
	http.ResponseWriter
	onSuccess   func()
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(status int) {
	if sw.wroteHeader {
		return
	}
	sw.wroteHeader = true
	sw.status = status
	if status >= 200 && status <= 299 {
		sw.onSuccess()
	}
	sw.ResponseWriter.WriteHeader(status)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.WriteHeader(http.StatusOK)
	}
	return sw.ResponseWriter.Write(b)
}

// finish handles handlers that return without writing: an implicit 200
func (sw *statusWriter) finish() {
	if !sw.wroteHeader {
		sw.WriteHeader(http.StatusOK)
	}
}

func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}
