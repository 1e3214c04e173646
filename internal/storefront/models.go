package storefront

import "time"

// Product is a catalog item. Prices are in cents.
type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category"`
	PriceCents  int64     `json:"priceCents"`
	Unit        string    `json:"unit,omitempty"`
	Stock       int       `json:"stock"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Category is derived from the products that reference it
type Category struct {
	Name         string `json:"name"`
	ProductCount int    `json:"productCount"`
}

type OrderStatus string

// Orders are placed synchronously, so every stored order is confirmed
const OrderStatusConfirmed OrderStatus = "CONFIRMED"

type OrderItem struct {
	ProductID  string `json:"productId"`
	Name       string `json:"name,omitempty"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"priceCents,omitempty"`
}

type Order struct {
	ID              string      `json:"id"`
	CustomerID      string      `json:"customerId"`
	Items           []OrderItem `json:"items"`
	TotalCents      int64       `json:"totalCents"`
	DeliveryAddress string      `json:"deliveryAddress"`
	Status          OrderStatus `json:"status"`
	CreatedAt       time.Time   `json:"createdAt"`
}

// Checkout is the body of an order creation request
type Checkout struct {
	Items           []OrderItem `json:"items"`
	DeliveryAddress string      `json:"deliveryAddress"`
}

// ProductFilter narrows ListProducts. Empty fields match everything.
type ProductFilter struct {
	Category string
	Query    string
}
