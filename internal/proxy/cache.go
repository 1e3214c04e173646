package proxy

import (
	"net/http"

	"github.com/iTrooz/storefront-cache/internal/apicache"

	"github.com/elazarl/goproxy"
	"github.com/sirupsen/logrus"
)

// pendingRead is a cache miss waiting for the upstream response
type pendingRead struct {
	key  string
	rule *ReadRule
	gen  uint64
}

// pendingInvalidation is a mutation waiting for the upstream status
type pendingInvalidation struct {
	rule *InvalidateRule
}

// onRequest serves cache hits and remembers what to do with the response
func (s *Server) onRequest(requ *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
	// MITM requests inherit the CONNECT context
	ctx.UserData = nil

	targetURL := getTargetURL(requ)

	if rule := s.readRule(targetURL); rule != nil && apicache.Eligible(requ) {
		key := apicache.Key(requ)
		if cached, ok := s.cache.Lookup(key); ok {
			logrus.Debugf("Serving %s from cache", targetURL)
			return requ, cached.HTTP(requ, apicache.CacheHit)
		}
		ctx.UserData = &pendingRead{key: key, rule: rule, gen: s.cache.Generation(rule.Tags...)}
		return requ, nil
	}

	if rule := s.invalidateRule(targetURL, requ.Method); rule != nil {
		ctx.UserData = &pendingInvalidation{rule: rule}
	}
	return requ, nil
}

// onResponse stores fresh reads and runs invalidations of successful mutations
func (s *Server) onResponse(resp *http.Response, ctx *goproxy.ProxyCtx) *http.Response {
	if resp == nil {
		return resp
	}

	switch pending := ctx.UserData.(type) {
	case *pendingRead:
		resp = s.cacheResponse(pending, resp, ctx)
		resp.Header.Set(apicache.HeaderCache, apicache.CacheMiss)
	case *pendingInvalidation:
		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			deleted := s.cache.Apply(pending.rule.Invalidation)
			logrus.Infof("Invalidated %d cache entries after %s %s", deleted, ctx.Req.Method, getTargetURL(ctx.Req))
		}
	}

	logrus.Debugf("Forwarded request: %s %s -> %d", ctx.Req.Method, getTargetURL(ctx.Req), resp.StatusCode)
	return resp
}

// cacheResponse stores a response in the cache. The upstream body is
// consumed, so an unreadable one is answered with a 502.
func (s *Server) cacheResponse(pending *pendingRead, resp *http.Response, ctx *goproxy.ProxyCtx) *http.Response {
	captured, err := apicache.FromHTTP(resp)
	if err != nil {
		logrus.Errorf("Failed to capture response for %s: %v", pending.key, err)
		return goproxy.NewResponse(ctx.Req, goproxy.ContentTypeText, http.StatusBadGateway, err.Error())
	}
	s.cache.StoreIfUnchanged(pending.key, captured, pending.rule.TTL, pending.rule.Tags, pending.gen)
	return resp
}

func (s *Server) readRule(targetURL string) *ReadRule {
	for i := range s.reads {
		if s.reads[i].Match(targetURL) {
			return &s.reads[i]
		}
	}
	return nil
}

func (s *Server) invalidateRule(targetURL, method string) *InvalidateRule {
	for i := range s.invalidations {
		if s.invalidations[i].Match(targetURL, method) {
			return &s.invalidations[i]
		}
	}
	return nil
}
