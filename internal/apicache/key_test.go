package apicache

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		want   string
	}{
		{"path", http.MethodGet, "/api/products", "api:GET:/api/products"},
		{"query", http.MethodGet, "/api/products?category=fruit&page=2", "api:GET:/api/products?category=fruit&page=2"},
		{"method qualified", http.MethodHead, "/api/products", "api:HEAD:/api/products"},
		{"absolute", http.MethodGet, "http://shop.local/api/products?q=milk", "api:GET:http://shop.local/api/products?q=milk"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, tt.target, nil)
			if tt.name != "absolute" {
				r.URL.Host = ""
				r.URL.Scheme = ""
			}
			assert.Equal(t, tt.want, Key(r))
		})
	}
}

func TestEligible(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		auth   string
		want   bool
	}{
		{"anonymous get", http.MethodGet, "/api/products", "", true},
		{"post", http.MethodPost, "/api/products", "", false},
		{"delete", http.MethodDelete, "/api/products/1", "", false},
		{"authorized get", http.MethodGet, "/api/orders", "Bearer x", false},
		{"authorized opt in", http.MethodGet, "/api/orders?cacheable=true", "Bearer x", true},
		{"authorized opt in any case", http.MethodGet, "/api/orders?cacheable=TRUE", "Bearer x", true},
		{"authorized other flag", http.MethodGet, "/api/orders?cacheable=1", "Bearer x", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, tt.target, nil)
			if tt.auth != "" {
				r.Header.Set("Authorization", tt.auth)
			}
			assert.Equal(t, tt.want, Eligible(r))
		})
	}
}

func TestPatternMatch(t *testing.T) {
	tests := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"products", "api:/api/products", true},
		{"products", "api:/api/orders", false},
		{"api:GET:/api/products*", "api:GET:/api/products?page=2", true},
		{"api:GET:/api/products*", "api:GET:/api/categories", false},
		{"*/api/categories*", "api:GET:http://shop.local/api/categories", true},
		{"api:GET:/api/products/?", "api:GET:/api/products/7", true},
		{"api:GET:/api/{orders,products}", "api:GET:/api/orders", true},
	}
	for _, tt := range tests {
		p, err := CompilePattern(tt.pattern)
		assert.NoError(t, err)
		assert.Equal(t, tt.want, p.Match(tt.key), "%s ~ %s", tt.pattern, tt.key)
	}
}

func TestCompilePatternErrors(t *testing.T) {
	_, err := CompilePattern("")
	assert.Error(t, err)

	assert.Panics(t, func() { MustCompilePattern("[") })
}

func TestCallerKey(t *testing.T) {
	get := func(auth string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/api/orders?cacheable=true", nil)
		r.URL.Host = ""
		r.URL.Scheme = ""
		if auth != "" {
			r.Header.Set("Authorization", auth)
		}
		return r
	}

	anonymous := CallerKey(get(""))
	alice := CallerKey(get("Bearer alice"))
	bob := CallerKey(get("Bearer bob"))

	assert.Equal(t, "api:GET:/api/orders?cacheable=true", anonymous)
	assert.NotEqual(t, alice, bob)
	assert.NotEqual(t, anonymous, alice)
	assert.Equal(t, alice, CallerKey(get("Bearer alice")))
	assert.NotContains(t, alice, "alice")
	// still reachable by pattern invalidation
	assert.True(t, MustCompilePattern("orders").Match(alice))
}
