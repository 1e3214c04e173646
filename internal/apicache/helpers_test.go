package apicache

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/iTrooz/storefront-cache/internal/cache"
)

// fixture_cache creates an API cache over a fresh memory store
func fixture_cache(t *testing.T) *Cache {
	t.Helper()
	store := cache.NewMemory(0)
	t.Cleanup(func() { _ = store.Close() })
	return New(store, Options{})
}

// fixture_handler answers with status and body and counts its executions
func fixture_handler(status int, body string, calls *atomic.Int32) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func do(h http.Handler, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
