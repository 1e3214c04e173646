// Package tests holds end-to-end fixtures wiring config, cache, storefront
// and proxy together the way the binary does.
package tests

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/iTrooz/storefront-cache/internal/apicache"
	"github.com/iTrooz/storefront-cache/internal/cache"
	"github.com/iTrooz/storefront-cache/internal/config"
	"github.com/iTrooz/storefront-cache/internal/proxy"
	"github.com/iTrooz/storefront-cache/internal/storefront"
)

const adminToken = "integration-token"

// fixture_config creates a test config with optional rules
func fixture_config(tempDir string, rules *config.RulesConfig) *config.Config {
	cfg := config.Default()
	cfg.Server.Port = 0 // Will be set by test server
	cfg.Storage.Path = filepath.Join(tempDir, "storefront.db")
	cfg.Admin.Token = adminToken

	if rules != nil {
		cfg.Rules = *rules
	}

	return cfg
}

// fixture_cache builds the store and API cache described by cfg
func fixture_cache(t *testing.T, cfg *config.Config) *apicache.Cache {
	t.Helper()

	ttl, err := cfg.GetDefaultTTL()
	if err != nil {
		t.Fatalf("Invalid default TTL: %v", err)
	}
	cleanup, err := cfg.GetCleanupInterval()
	if err != nil {
		t.Fatalf("Invalid cleanup interval: %v", err)
	}

	store, err := cache.New(cache.Options{
		Backend:         cfg.Cache.Backend,
		MaxEntries:      cfg.Cache.MaxEntries,
		CleanupInterval: cleanup,
	})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return apicache.New(store, apicache.Options{DefaultTTL: ttl})
}

// fixture_storefront serves the storefront API in a test server
func fixture_storefront(t *testing.T, cfg *config.Config) (*httptest.Server, *apicache.Cache) {
	t.Helper()

	repo, err := storefront.Open(cfg.Storage.Path)
	if err != nil {
		t.Fatalf("Failed to open storefront: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	c := fixture_cache(t, cfg)
	router := storefront.NewRouter(storefront.NewHandler(repo), c, apicache.NewAdminHandler(c, cfg.Admin.Token))

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, c
}

// fixture_proxy creates a proxy server with the given config and returns the server, test server, and HTTP client
func fixture_proxy(t *testing.T, cfg *config.Config) (*apicache.Cache, *httptest.Server, *http.Client) {
	t.Helper()

	c := fixture_cache(t, cfg)
	proxyServer, err := proxy.New(cfg, c, apicache.NewAdminHandler(c, cfg.Admin.Token))
	if err != nil {
		t.Fatalf("Failed to create proxy server: %v", err)
	}

	// Create test proxy HTTP server using goproxy
	proxyTestServer := httptest.NewServer(proxyServer.GetProxy())
	t.Cleanup(proxyTestServer.Close)

	// Create HTTP client that uses our proxy
	proxyURL, _ := url.Parse(proxyTestServer.URL)
	client := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		},
		Timeout: 10 * time.Second,
	}

	return c, proxyTestServer, client
}
