package storefront

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// maximum accepted request body
const maxBodyBytes = 1 << 20

// Handler serves the storefront API from a Repository
type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	products, err := h.repo.ListProducts(ProductFilter{
		Category: q.Get("category"),
		Query:    q.Get("q"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: products})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.repo.GetProduct(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: p})
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var p Product
	if err := decodeBody(w, r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := h.repo.CreateProduct(p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: created})
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var p Product
	if err := decodeBody(w, r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	updated, err := h.repo.UpdateProduct(r.PathValue("id"), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: updated})
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.DeleteProduct(r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true})
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.repo.Categories()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: categories})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	customer, ok := customerID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, envelope{Error: "missing customer credentials"})
		return
	}
	orders, err := h.repo.ListOrders(customer)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: orders})
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	customer, ok := customerID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, envelope{Error: "missing customer credentials"})
		return
	}
	var checkout Checkout
	if err := decodeBody(w, r, &checkout); err != nil {
		writeError(w, r, err)
		return
	}
	order, err := h.repo.CreateOrder(customer, checkout)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: order})
}

func health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]string{"status": "ok"}})
}

// customerID reads the customer from "Authorization: Bearer <customer>"
func customerID(r *http.Request) (string, bool) {
	id, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	id = strings.TrimSpace(id)
	return id, ok && id != ""
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, ErrOutOfStock):
		status = http.StatusConflict
	default:
		logrus.Errorf("%s %s failed: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, envelope{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("Failed to write response: %v", err)
	}
}
