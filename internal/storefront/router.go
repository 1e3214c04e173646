package storefront

import (
	"net/http"
	"time"

	"github.com/iTrooz/storefront-cache/internal/apicache"

	"github.com/sirupsen/logrus"
)

// Cache tags of the storefront routes
const (
	TagProducts   apicache.Tag = "products"
	TagCategories apicache.Tag = "categories"
	TagOrders     apicache.Tag = "orders"
)

// NewRouter wires the storefront routes behind the API cache. admin, when not
// nil, is mounted under /admin/cache.
func NewRouter(h *Handler, c *apicache.Cache, admin http.Handler) http.Handler {
	mux := http.NewServeMux()

	products := c.Cached(apicache.Route{Tags: []apicache.Tag{TagProducts}})
	categories := c.Cached(apicache.Route{Tags: []apicache.Tag{TagCategories, TagProducts}})
	orders := c.Cached(apicache.Route{Tags: []apicache.Tag{TagOrders}, PerCaller: true})

	catalogChanged := c.Invalidate(apicache.Invalidation{Tags: []apicache.Tag{TagProducts, TagCategories}})
	orderPlaced := c.Invalidate(apicache.Invalidation{Tags: []apicache.Tag{TagProducts, TagOrders}})

	mux.Handle("GET /api/products", products(http.HandlerFunc(h.listProducts)))
	mux.Handle("GET /api/products/{id}", products(http.HandlerFunc(h.getProduct)))
	mux.Handle("GET /api/categories", categories(http.HandlerFunc(h.listCategories)))
	mux.Handle("POST /api/products", catalogChanged(http.HandlerFunc(h.createProduct)))
	mux.Handle("PUT /api/products/{id}", catalogChanged(http.HandlerFunc(h.updateProduct)))
	mux.Handle("DELETE /api/products/{id}", catalogChanged(http.HandlerFunc(h.deleteProduct)))
	mux.Handle("GET /api/orders", orders(http.HandlerFunc(h.listOrders)))
	mux.Handle("POST /api/orders", orderPlaced(http.HandlerFunc(h.createOrder)))
	mux.HandleFunc("GET /health", health)

	if admin != nil {
		mux.Handle("/admin/cache", admin)
		mux.Handle("/admin/cache/", admin)
	}

	return requestLogger(mux)
}

// requestLogger logs every request with its status and duration
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(lw, r)

		logrus.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.RequestURI(),
			"status":   lw.status,
			"cache":    lw.Header().Get(apicache.HeaderCache),
			"duration": time.Since(start),
		}).Debug("Handled request")
	})
}

type loggingWriter struct {
	http.ResponseWriter
	status int
}

func (lw *loggingWriter) WriteHeader(status int) {
	lw.status = status
	lw.ResponseWriter.WriteHeader(status)
}

func (lw *loggingWriter) Unwrap() http.ResponseWriter {
	return lw.ResponseWriter
}
