package apicache

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewAdminHandler exposes stats and clearing under /admin/cache.
// Requests must carry "Authorization: Bearer <token>"; with an empty token
// every admin route answers 404.
//
//	GET    /admin/cache/stats
//	DELETE /admin/cache?pattern=...
//	DELETE /admin/cache/all
func NewAdminHandler(c *Cache, token string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /admin/cache/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, envelope{Success: true, Data: c.Stats()})
	})

	mux.HandleFunc("DELETE /admin/cache", func(w http.ResponseWriter, r *http.Request) {
		pattern := r.URL.Query().Get("pattern")
		if pattern == "" {
			writeJSON(w, http.StatusBadRequest, envelope{Error: "pattern query parameter is required"})
			return
		}
		deleted, err := c.ClearPattern(pattern)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, envelope{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]int{"deleted": deleted}})
	})

	mux.HandleFunc("DELETE /admin/cache/all", func(w http.ResponseWriter, r *http.Request) {
		c.ClearAll()
		writeJSON(w, http.StatusOK, envelope{Success: true})
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token == "" {
			http.NotFound(w, r)
			return
		}
		given, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
			writeJSON(w, http.StatusUnauthorized, envelope{Error: "unauthorized"})
			return
		}
		mux.ServeHTTP(w, r)
	})
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("Failed to write admin response: %v", err)
	}
}
