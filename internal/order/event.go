// Package order defines the OrderCreated event, its wire codec and request validation.
package order

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// EventTypeOrderCreated is the only event variant currently written to the log.
	EventTypeOrderCreated = "OrderCreated"

	// SchemaVersion is the envelope version stamped by the publisher.
	SchemaVersion = 1
)

// Item is a single order line.
type Item struct {
	SKU   string  `json:"sku"`
	Qty   int     `json:"qty"`
	Price float64 `json:"price"`
}

// Event is the unit of work flowing through the log.
// Total is computed once at publish time and never recomputed downstream.
type Event struct {
	EventType     string  `json:"event_type"`
	OrderID       string  `json:"order_id"`
	CustomerID    string  `json:"customer_id"`
	CreatedAtMs   int64   `json:"created_at_ms"`
	Items         []Item  `json:"items"`
	Total         float64 `json:"total"`
	SchemaVersion int     `json:"schema_version"`
}

// Request is the inbound create-order payload.
type Request struct {
	CustomerID string `json:"customer_id"`
	Items      []Item `json:"items"`
}

// Validate checks the request before anything is sent to the broker.
// It returns a typed *ValidationError for the first violation found.
func (r *Request) Validate() error {
	if r == nil {
		return &ValidationError{Field: "request", Reason: "is nil"}
	}
	if strings.TrimSpace(r.CustomerID) == "" {
		return &ValidationError{Field: "customer_id", Reason: "is required"}
	}
	if len(r.Items) == 0 {
		return &ValidationError{Field: "items", Reason: "must not be empty"}
	}
	for i, it := range r.Items {
		if err := validateItem(i, it); err != nil {
			return err
		}
	}
	return nil
}

func validateItem(i int, it Item) error {
	if it.Qty < 1 {
		return &ValidationError{Field: fmt.Sprintf("items[%d].qty", i), Reason: "must be >= 1"}
	}
	if !(it.Price > 0) {
		return &ValidationError{Field: fmt.Sprintf("items[%d].price", i), Reason: "must be > 0"}
	}
	return nil
}

// Total returns the sum of qty*price over all items rounded to 2 decimal places,
// half to even.
func Total(items []Item) float64 {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(decimal.NewFromFloat(it.Price).Mul(decimal.NewFromInt(int64(it.Qty))))
	}
	f, _ := sum.RoundBank(2).Float64()
	return f
}

// NormalizeSKU lower-cases and trims a sku so " A " and "a" count as the same product.
func NormalizeSKU(sku string) string {
	return strings.ToLower(strings.TrimSpace(sku))
}
