package pipeline

import (
	"context"
	"errors"

	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/broker"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/order"
)

// Handler is the business processing applied to every decoded record.
type Handler interface {
	Handle(ctx context.Context, rec broker.Record, ev *order.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, rec broker.Record, ev *order.Event) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, rec broker.Record, ev *order.Event) error {
	return f(ctx, rec, ev)
}

// Process runs every stage for one record. The decoded event is returned whenever
// decoding succeeded so callers can log its order id on later failures.
func Process(ctx context.Context, rec broker.Record, h Handler) (*order.Event, error) {
	if h == nil {
		return nil, &ProcessError{Err: &order.ValidationError{Field: "Handler", Reason: "is nil"}}
	}

	ev, err := Decode(ctx, rec.Value)
	if err != nil {
		return nil, err
	}

	if err := Validate(ctx, ev); err != nil {
		return ev, err
	}

	if err := h.Handle(ctx, rec, ev); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return ev, ErrContextCanceled
		}
		return ev, &ProcessError{Err: err}
	}

	return ev, nil
}
