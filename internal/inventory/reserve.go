// Package inventory reserves stock for order events. Reservations are keyed by order id
// so a redelivered event returns the reservation made the first time.
package inventory

import (
	"fmt"

	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/order"
)

// Reservation is the quantity held for one sku.
type Reservation struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

// Result is the outcome of reserving one order.
type Result struct {
	OrderID  string        `json:"order_id"`
	Reserved []Reservation `json:"reserved"`
}

// Reserve validates every item of ev and returns the reservation for all of them.
// Any invalid item fails the whole order and no partial result is returned.
func Reserve(ev *order.Event) (*Result, error) {
	if ev == nil {
		return nil, &order.ValidationError{Field: "event", Reason: "is nil"}
	}
	if ev.OrderID == "" {
		return nil, &order.ValidationError{Field: "order_id", Reason: "is required"}
	}

	reserved := make([]Reservation, 0, len(ev.Items))
	for i, it := range ev.Items {
		sku := order.NormalizeSKU(it.SKU)
		if sku == "" {
			return nil, &order.ValidationError{Field: fmt.Sprintf("items[%d].sku", i), Reason: "is required"}
		}
		if it.Qty <= 0 {
			return nil, &order.ValidationError{Field: fmt.Sprintf("items[%d].qty", i), Reason: fmt.Sprintf("must be positive, got %d", it.Qty)}
		}
		reserved = append(reserved, Reservation{SKU: sku, Qty: it.Qty})
	}

	return &Result{OrderID: ev.OrderID, Reserved: reserved}, nil
}
