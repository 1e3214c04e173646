package storefront

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

var (
	productsBucket = []byte("products")
	ordersBucket   = []byte("orders")
)

// Repository persists the catalog and orders in a bbolt file.
// It is safe for concurrent use by multiple goroutines.
type Repository struct {
	db  *bolt.DB
	now func() time.Time
}

// Open initializes or opens the database at path. An empty catalog is
// seeded with demo products.
func Open(path string) (*Repository, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening storefront database: %w", err)
	}
	r := &Repository{db: db, now: time.Now}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{productsBucket, ordersBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	if err := r.seed(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("seeding catalog: %w", err)
	}
	return r, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Repository) seed() error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(productsBucket)
		if k, _ := b.Cursor().First(); k != nil {
			return nil
		}
		now := r.now()
		for _, p := range demoCatalog {
			p.UpdatedAt = now
			if err := putJSON(b, p.ID, p); err != nil {
				return err
			}
		}
		logrus.Infof("Seeded storefront catalog with %d products", len(demoCatalog))
		return nil
	})
}

// ListProducts returns the products matching filter, sorted by name
func (r *Repository) ListProducts(filter ProductFilter) ([]Product, error) {
	query := strings.ToLower(strings.TrimSpace(filter.Query))
	products := []Product{}

	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(productsBucket).ForEach(func(_, v []byte) error {
			var p Product
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			if filter.Category != "" && !strings.EqualFold(p.Category, filter.Category) {
				return nil
			}
			if query != "" &&
				!strings.Contains(strings.ToLower(p.Name), query) &&
				!strings.Contains(strings.ToLower(p.Description), query) {
				return nil
			}
			products = append(products, p)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}

	sort.Slice(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

// GetProduct returns ErrNotFound for unknown ids
func (r *Repository) GetProduct(id string) (*Product, error) {
	var p Product
	err := r.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(productsBucket), id, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProduct stores p under a fresh id
func (r *Repository) CreateProduct(p Product) (*Product, error) {
	if err := validateProduct(p); err != nil {
		return nil, err
	}
	p.ID = uuid.NewString()
	p.UpdatedAt = r.now()

	err := r.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(productsBucket), p.ID, p)
	})
	if err != nil {
		return nil, fmt.Errorf("creating product: %w", err)
	}
	return &p, nil
}

// UpdateProduct replaces the product stored under id
func (r *Repository) UpdateProduct(id string, p Product) (*Product, error) {
	if err := validateProduct(p); err != nil {
		return nil, err
	}
	p.ID = id
	p.UpdatedAt = r.now()

	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(productsBucket)
		if b.Get([]byte(id)) == nil {
			return fmt.Errorf("product %s: %w", id, ErrNotFound)
		}
		return putJSON(b, id, p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DeleteProduct removes the product stored under id
func (r *Repository) DeleteProduct(id string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(productsBucket)
		if b.Get([]byte(id)) == nil {
			return fmt.Errorf("product %s: %w", id, ErrNotFound)
		}
		return b.Delete([]byte(id))
	})
}

// Categories lists the categories in use, sorted by name
func (r *Repository) Categories() ([]Category, error) {
	products, err := r.ListProducts(ProductFilter{})
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, p := range products {
		counts[p.Category]++
	}
	categories := make([]Category, 0, len(counts))
	for name, n := range counts {
		categories = append(categories, Category{Name: name, ProductCount: n})
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })
	return categories, nil
}

// CreateOrder checks out the given items for customerID. Stock is decremented
// in the same transaction that stores the order, so either both happen or
// neither does.
func (r *Repository) CreateOrder(customerID string, checkout Checkout) (*Order, error) {
	if customerID == "" {
		return nil, fmt.Errorf("customer is required: %w", ErrInvalid)
	}
	if len(checkout.Items) == 0 {
		return nil, fmt.Errorf("order has no items: %w", ErrInvalid)
	}
	if strings.TrimSpace(checkout.DeliveryAddress) == "" {
		return nil, fmt.Errorf("delivery address is required: %w", ErrInvalid)
	}

	order := &Order{
		ID:              uuid.NewString(),
		CustomerID:      customerID,
		DeliveryAddress: checkout.DeliveryAddress,
		Status:          OrderStatusConfirmed,
		CreatedAt:       r.now(),
	}

	err := r.db.Update(func(tx *bolt.Tx) error {
		products := tx.Bucket(productsBucket)
		for _, item := range checkout.Items {
			if item.Quantity <= 0 {
				return fmt.Errorf("quantity of %s must be positive: %w", item.ProductID, ErrInvalid)
			}

			var p Product
			if err := getJSON(products, item.ProductID, &p); err != nil {
				return err
			}
			if p.Stock < item.Quantity {
				return fmt.Errorf("%s (%d left): %w", p.Name, p.Stock, ErrOutOfStock)
			}
			p.Stock -= item.Quantity
			p.UpdatedAt = order.CreatedAt
			if err := putJSON(products, p.ID, p); err != nil {
				return err
			}

			order.Items = append(order.Items, OrderItem{
				ProductID:  p.ID,
				Name:       p.Name,
				Quantity:   item.Quantity,
				PriceCents: p.PriceCents,
			})
			order.TotalCents += p.PriceCents * int64(item.Quantity)
		}
		return putJSON(tx.Bucket(ordersBucket), order.ID, order)
	})
	if err != nil {
		return nil, err
	}

	logrus.Infof("Order %s placed by %s (%d items, %d cents)", order.ID, customerID, len(order.Items), order.TotalCents)
	return order, nil
}

// ListOrders returns the orders of customerID, newest first
func (r *Repository) ListOrders(customerID string) ([]Order, error) {
	orders := []Order{}
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(ordersBucket).ForEach(func(_, v []byte) error {
			var o Order
			if err := json.Unmarshal(v, &o); err != nil {
				return err
			}
			if o.CustomerID == customerID {
				orders = append(orders, o)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders, nil
}

func validateProduct(p Product) error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return fmt.Errorf("product name is required: %w", ErrInvalid)
	case strings.TrimSpace(p.Category) == "":
		return fmt.Errorf("product category is required: %w", ErrInvalid)
	case p.PriceCents < 0:
		return fmt.Errorf("product price must not be negative: %w", ErrInvalid)
	case p.Stock < 0:
		return fmt.Errorf("product stock must not be negative: %w", ErrInvalid)
	}
	return nil
}

func getJSON(b *bolt.Bucket, id string, v any) error {
	raw := b.Get([]byte(id))
	if raw == nil {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding %s: %w", id, err)
	}
	return nil
}

func putJSON(b *bolt.Bucket, id string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", id, err)
	}
	return b.Put([]byte(id), raw)
}
