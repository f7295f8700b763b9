package pipeline

import (
	"context"

	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/order"
)

// Decode parses a record value into an order event.
// It returns a typed *order.DecodeError for malformed payloads.
func Decode(ctx context.Context, value []byte) (*order.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, ErrContextCanceled
	}

	ev, err := order.Decode(value)
	if err != nil {
		return nil, err
	}

	return ev, nil
}
