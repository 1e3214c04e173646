// Package proxy is a caching forward proxy: reads under configured base URIs
// are served through the API cache, and successful mutations under other
// base URIs invalidate it.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/iTrooz/storefront-cache/internal/apicache"
	"github.com/iTrooz/storefront-cache/internal/config"

	"github.com/elazarl/goproxy"
	"github.com/sirupsen/logrus"
)

// Server represents the caching proxy server
type Server struct {
	config        *config.Config
	cache         *apicache.Cache
	proxy         *goproxy.ProxyHttpServer
	certs         *leafCerts
	reads         []ReadRule
	invalidations []InvalidateRule

	mu          sync.Mutex
	httpServer  *http.Server
	transparent net.Listener
}

// New creates a new proxy server. Requests addressed to the proxy itself
// rather than through it are served by admin, when not nil.
func New(cfg *config.Config, c *apicache.Cache, admin http.Handler) (*Server, error) {
	reads, invalidations, err := compileRules(cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy rules: %w", err)
	}

	s := &Server{
		config:        cfg,
		cache:         c,
		proxy:         goproxy.NewProxyHttpServer(),
		reads:         reads,
		invalidations: invalidations,
	}

	s.proxy.Verbose = logrus.IsLevelEnabled(logrus.TraceLevel)
	if admin != nil {
		s.proxy.NonproxyHandler = admin
	}

	if cfg.Server.HTTPS.Intercept || cfg.Server.HTTPS.TransparentPort > 0 {
		if err := s.setupHTTPSProxyHandler(); err != nil {
			return nil, fmt.Errorf("failed to set up TLS interception: %w", err)
		}
	}

	s.proxy.OnRequest().DoFunc(s.onRequest)
	s.proxy.OnResponse().DoFunc(s.onResponse)

	return s, nil
}

// GetProxy returns the underlying goproxy handler
func (s *Server) GetProxy() *goproxy.ProxyHttpServer {
	return s.proxy
}

// Start serves the proxy until Shutdown is called
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Server.Port),
		Handler: s.proxy,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	if port := s.config.Server.HTTPS.TransparentPort; port > 0 {
		go func() {
			if err := s.StartTransparentHTTPS(fmt.Sprintf(":%d", port)); err != nil {
				logrus.Errorf("Transparent HTTPS stopped: %v", err)
			}
		}()
	}

	logrus.Infof("Starting caching proxy on port %d", s.config.Server.Port)
	logrus.Infof("Read rules: %d, invalidate rules: %d", len(s.reads), len(s.invalidations))
	logrus.Infof("Default cache TTL: %s", s.cache.DefaultTTL())

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, ln := s.httpServer, s.transparent
	s.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
