package apicache

import (
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedPassesThroughNonGet(t *testing.T) {
	c := fixture_cache(t)
	var calls atomic.Int32
	h := c.Cached(Route{})(fixture_handler(http.StatusCreated, `{"success":true}`, &calls))

	for i := 0; i < 2; i++ {
		rec := do(h, http.MethodPost, "/api/products", nil)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Empty(t, rec.Header().Get(HeaderCache))
	}
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 0, c.Size())
	assert.Equal(t, Stats{HitRate: "0%"}, c.Stats())
}

func TestCachedSkipsAuthorizedRequests(t *testing.T) {
	c := fixture_cache(t)
	var calls atomic.Int32
	h := c.Cached(Route{})(fixture_handler(http.StatusOK, `{"success":true,"data":"public"}`, &calls))

	// warm the entry with an anonymous request
	rec := do(h, http.MethodGet, "/api/orders", nil)
	require.Equal(t, CacheMiss, rec.Header().Get(HeaderCache))
	rec = do(h, http.MethodGet, "/api/orders", nil)
	require.Equal(t, CacheHit, rec.Header().Get(HeaderCache))

	auth := http.Header{"Authorization": {"Bearer alice"}}
	rec = do(h, http.MethodGet, "/api/orders", auth)
	assert.Empty(t, rec.Header().Get(HeaderCache), "credentialed request must bypass the cache")
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1, c.Size())
}

func TestCachedAuthorizedOptIn(t *testing.T) {
	c := fixture_cache(t)
	var calls atomic.Int32
	h := c.Cached(Route{})(fixture_handler(http.StatusOK, `{"success":true}`, &calls))
	auth := http.Header{"Authorization": {"Bearer alice"}}

	rec := do(h, http.MethodGet, "/api/categories?cacheable=true", auth)
	assert.Equal(t, CacheMiss, rec.Header().Get(HeaderCache))
	rec = do(h, http.MethodGet, "/api/categories?cacheable=true", auth)
	assert.Equal(t, CacheHit, rec.Header().Get(HeaderCache))
	assert.Equal(t, int32(1), calls.Load())
}

func TestCachedNeverStoresFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"success":false,"error":"db down"}`},
		{"failure flag with 200", http.StatusOK, `{"success":false,"error":"out of stock"}`},
		{"not found", http.StatusNotFound, `{"success":false}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := fixture_cache(t)
			var calls atomic.Int32
			h := c.Cached(Route{})(fixture_handler(tt.status, tt.body, &calls))

			for i := 0; i < 2; i++ {
				rec := do(h, http.MethodGet, "/api/products/42", nil)
				assert.Equal(t, tt.status, rec.Code)
				assert.Equal(t, CacheMiss, rec.Header().Get(HeaderCache))
				assert.JSONEq(t, tt.body, rec.Body.String())
			}
			assert.Equal(t, int32(2), calls.Load())
			assert.Equal(t, 0, c.Size())
		})
	}
}

func TestCachedKeepsHeadersButNotCookies(t *testing.T) {
	c := fixture_cache(t)
	h := c.Cached(Route{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Set-Cookie", "session=abc")
		_, _ = w.Write([]byte(`{"success":true}`))
	}))

	do(h, http.MethodGet, "/api/products", nil)
	rec := do(h, http.MethodGet, "/api/products", nil)

	assert.Equal(t, CacheHit, rec.Header().Get(HeaderCache))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Header().Get("Set-Cookie"))
}

func TestCachedEntryExpires(t *testing.T) {
	c := fixture_cache(t)
	var calls atomic.Int32
	h := c.Cached(Route{TTL: 50 * time.Millisecond})(fixture_handler(http.StatusOK, `{"success":true}`, &calls))

	do(h, http.MethodGet, "/api/products", nil)
	assert.Equal(t, CacheHit, do(h, http.MethodGet, "/api/products", nil).Header().Get(HeaderCache))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, CacheMiss, do(h, http.MethodGet, "/api/products", nil).Header().Get(HeaderCache))
	assert.Equal(t, int32(2), calls.Load())
}

func TestCachedCollapsesConcurrentMisses(t *testing.T) {
	c := fixture_cache(t)
	var calls atomic.Int32
	release := make(chan struct{})
	h := c.Cached(Route{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		_, _ = w.Write([]byte(`{"success":true,"data":[1,2]}`))
	}))

	const readers = 2
	var wg sync.WaitGroup
	var started sync.WaitGroup
	bodies := make([]string, readers)
	started.Add(readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			bodies[i] = do(h, http.MethodGet, "/api/products", nil).Body.String()
		}(i)
	}
	started.Wait()
	// give both readers time to join the flight before the handler returns
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, c.Size())
	for _, b := range bodies {
		assert.JSONEq(t, `{"success":true,"data":[1,2]}`, b)
	}
}

func TestInvalidateOnSuccessfulMutation(t *testing.T) {
	c := fixture_cache(t)
	c.store.Set("api:/api/products", &Response{StatusCode: 200}, time.Minute)
	c.store.Set("api:/api/orders", &Response{StatusCode: 200}, time.Minute)

	var calls atomic.Int32
	h := c.Invalidate(Invalidation{
		Patterns: []Pattern{MustCompilePattern("products")},
	})(fixture_handler(http.StatusOK, `{"success":true}`, &calls))

	rec := do(h, http.MethodPut, "/api/products/1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, c.store.Has("api:/api/products"))
	assert.True(t, c.store.Has("api:/api/orders"))
}

func TestInvalidateIgnoresFailedMutation(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError} {
		c := fixture_cache(t)
		c.store.Set("api:/api/products", &Response{StatusCode: 200}, time.Minute)
		c.Store("api:GET:/api/categories", &Response{StatusCode: 200}, time.Minute, []Tag{"categories"})

		var calls atomic.Int32
		h := c.Invalidate(Invalidation{
			Tags:     []Tag{"categories"},
			Patterns: []Pattern{MustCompilePattern("*")},
		})(fixture_handler(status, `{"success":false}`, &calls))

		rec := do(h, http.MethodDelete, "/api/products/1", nil)
		assert.Equal(t, status, rec.Code)
		assert.Equal(t, 2, c.Size(), "status %d must not invalidate", status)
	}
}

func TestInvalidateAppliesEveryRule(t *testing.T) {
	c := fixture_cache(t)
	ok := &Response{StatusCode: 200}
	c.Store("api:GET:/api/products", ok, time.Minute, []Tag{"products"})
	c.Store("api:GET:/api/categories", ok, time.Minute, nil)
	c.Store("api:GET:/api/banners", ok, time.Minute, nil)
	c.Store("api:GET:/api/orders", ok, time.Minute, nil)

	inv := Invalidation{
		Tags: []Tag{"products", "unused"},
		Patterns: []Pattern{
			MustCompilePattern("no-such-route"),
			MustCompilePattern("categories"),
			MustCompilePattern("api:GET:/api/ban*"),
		},
	}
	assert.Equal(t, 3, c.Apply(inv))
	assert.Equal(t, 1, c.Size())
	assert.True(t, c.store.Has("api:GET:/api/orders"))
}

func TestInvalidateImplicitStatus(t *testing.T) {
	c := fixture_cache(t)
	c.Store("api:GET:/api/products", &Response{StatusCode: 200}, time.Minute, []Tag{"products"})

	h := c.Invalidate(Invalidation{Tags: []Tag{"products"}})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := do(h, http.MethodDelete, "/api/products/1", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, c.Size())
}

func TestInvalidateBeforeResponseIsSent(t *testing.T) {
	c := fixture_cache(t)
	c.Store("api:GET:/api/products", &Response{StatusCode: 200}, time.Minute, []Tag{"products"})

	var sizeAtWrite int
	h := c.Invalidate(Invalidation{Tags: []Tag{"products"}})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		sizeAtWrite = c.Size()
	}))
	do(h, http.MethodPost, "/api/products", nil)

	assert.Equal(t, 0, sizeAtWrite)
}

func TestCachedPerCallerRoute(t *testing.T) {
	c := fixture_cache(t)
	h := c.Cached(Route{PerCaller: true})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"success":false}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":"` + r.Header.Get("Authorization") + `"}`))
	}))
	alice := http.Header{"Authorization": {"Bearer alice"}}
	bob := http.Header{"Authorization": {"Bearer bob"}}

	rec := do(h, http.MethodGet, "/api/orders?cacheable=true", alice)
	require.Equal(t, CacheMiss, rec.Header().Get(HeaderCache))
	rec = do(h, http.MethodGet, "/api/orders?cacheable=true", alice)
	require.Equal(t, CacheHit, rec.Header().Get(HeaderCache))

	rec = do(h, http.MethodGet, "/api/orders?cacheable=true", bob)
	assert.Equal(t, CacheMiss, rec.Header().Get(HeaderCache))
	assert.Contains(t, rec.Body.String(), "Bearer bob")

	rec = do(h, http.MethodGet, "/api/orders?cacheable=true", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotContains(t, rec.Body.String(), "alice")
}

func TestCachedDropsReadOverlappingInvalidation(t *testing.T) {
	c := fixture_cache(t)
	var version atomic.Value
	version.Store("old")

	var blocked atomic.Bool
	blocked.Store(true)
	started := make(chan struct{})
	release := make(chan struct{})

	read := c.Cached(Route{Tags: []Tag{"products"}})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := version.Load().(string)
		if blocked.CompareAndSwap(true, false) {
			close(started)
			<-release
		}
		_, _ = w.Write([]byte(`{"success":true,"v":"` + v + `"}`))
	}))
	write := c.Invalidate(Invalidation{Tags: []Tag{"products"}})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		version.Store("new")
		w.WriteHeader(http.StatusOK)
	}))

	inFlight := make(chan string, 1)
	go func() {
		inFlight <- do(read, http.MethodGet, "/api/products", nil).Body.String()
	}()
	<-started

	rec := do(write, http.MethodPut, "/api/products/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	close(release)

	// the reader that started first still gets its answer, it is just not kept
	assert.JSONEq(t, `{"success":true,"v":"old"}`, <-inFlight)
	assert.Equal(t, 0, c.Size())

	rec = do(read, http.MethodGet, "/api/products", nil)
	assert.Equal(t, CacheMiss, rec.Header().Get(HeaderCache))
	assert.JSONEq(t, `{"success":true,"v":"new"}`, rec.Body.String())
}
