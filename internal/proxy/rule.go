package proxy

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/iTrooz/storefront-cache/internal/apicache"
	"github.com/iTrooz/storefront-cache/internal/config"
)

// ReadRule makes eligible GET requests under BaseURI cacheable
type ReadRule struct {
	BaseURI string
	TTL     time.Duration
	Tags    []apicache.Tag
}

// Match checks if a target URL falls under this rule
func (r *ReadRule) Match(targetURL string) bool {
	return strings.HasPrefix(targetURL, r.BaseURI)
}

// InvalidateRule drops cache entries when a matching mutation succeeds
type InvalidateRule struct {
	BaseURI      string
	Methods      []string
	Invalidation apicache.Invalidation
}

// Match checks if a request matches this rule
func (r *InvalidateRule) Match(targetURL, method string) bool {
	// Check if URL starts with base URI
	if !strings.HasPrefix(targetURL, r.BaseURI) {
		return false
	}

	// No methods means every mutating method
	if len(r.Methods) == 0 {
		return method != http.MethodGet && method != http.MethodHead && method != http.MethodOptions
	}
	for _, m := range r.Methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// compileRules turns configured rules into matchers
func compileRules(cfg config.RulesConfig) ([]ReadRule, []InvalidateRule, error) {
	reads := make([]ReadRule, 0, len(cfg.Read))
	for i, rule := range cfg.Read {
		ttl, err := rule.GetTTL()
		if err != nil {
			return nil, nil, fmt.Errorf("read rule %d: invalid TTL: %w", i, err)
		}
		reads = append(reads, ReadRule{
			BaseURI: rule.BaseURI,
			TTL:     ttl,
			Tags:    toTags(rule.Tags),
		})
	}

	invalidations := make([]InvalidateRule, 0, len(cfg.Invalidate))
	for i, rule := range cfg.Invalidate {
		patterns := make([]apicache.Pattern, 0, len(rule.Patterns))
		for _, raw := range rule.Patterns {
			p, err := apicache.CompilePattern(raw)
			if err != nil {
				return nil, nil, fmt.Errorf("invalidate rule %d: %w", i, err)
			}
			patterns = append(patterns, p)
		}
		invalidations = append(invalidations, InvalidateRule{
			BaseURI: rule.BaseURI,
			Methods: rule.Methods,
			Invalidation: apicache.Invalidation{
				Tags:     toTags(rule.Tags),
				Patterns: patterns,
			},
		})
	}

	return reads, invalidations, nil
}

func toTags(raw []string) []apicache.Tag {
	if len(raw) == 0 {
		return nil
	}
	tags := make([]apicache.Tag, len(raw))
	for i, t := range raw {
		tags[i] = apicache.Tag(t)
	}
	return tags
}

// getTargetURL returns the absolute URL a proxied request is aimed at
func getTargetURL(r *http.Request) string {
	if r.URL.IsAbs() {
		return r.URL.String()
	}

	// Reconstruct URL from Host header
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	return fmt.Sprintf("%s://%s%s", scheme, r.Host, r.URL.String())
}
