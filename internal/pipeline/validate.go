package pipeline

import (
	"context"
	"strings"

	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/order"
)

// Validate checks invariants the codec does not: the order id must carry more than
// whitespace since it is the dedup key downstream.
func Validate(ctx context.Context, ev *order.Event) error {
	if err := ctx.Err(); err != nil {
		return ErrContextCanceled
	}
	if ev == nil {
		return &order.ValidationError{Field: "event", Reason: "is nil"}
	}
	if strings.TrimSpace(ev.OrderID) == "" {
		return &order.ValidationError{Field: "order_id", Reason: "is required"}
	}
	return nil
}
