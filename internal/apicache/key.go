package apicache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

const (
	keyPrefix      = "api:"
	cacheableParam = "cacheable"
)

// Key returns the cache key for a request: method-qualified request URI,
// including the raw query. Absolute URLs (proxy requests) keep their host.
func Key(r *http.Request) string {
	uri := r.URL.RequestURI()
	if r.URL.IsAbs() {
		uri = r.URL.String()
	}
	return keyPrefix + r.Method + ":" + uri
}

// CallerKey is Key scoped to the request's Authorization header, so an entry
// stored for one caller is never served to another. Anonymous requests share
// the plain Key.
func CallerKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return Key(r)
	}
	sum := sha256.Sum256([]byte(auth))
	return Key(r) + "#" + hex.EncodeToString(sum[:])[:16]
}

// Eligible reports whether a request may be served from or stored into the
// shared cache. Credentialed requests are caller-specific unless they opt in
// with cacheable=true.
func Eligible(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	if r.Header.Get("Authorization") != "" {
		return strings.EqualFold(r.URL.Query().Get(cacheableParam), "true")
	}
	return true
}
