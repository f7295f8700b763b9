package inventory

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/broker"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/order"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/retry"
)

// Service reserves orders at most once per order id.
type Service struct {
	store   Store
	latency time.Duration
	logger  *zap.Logger
}

// NewService creates a service. latency is the simulated downstream work per reservation.
func NewService(store Store, latency time.Duration, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &Service{store: store, latency: latency, logger: logger}, nil
}

// Reserve returns the reservation for ev. duplicate is true when the order had already
// been reserved and the stored result is returned unchanged.
func (s *Service) Reserve(ctx context.Context, ev *order.Event) (res *Result, duplicate bool, err error) {
	if ev == nil {
		return nil, false, &order.ValidationError{Field: "event", Reason: "is nil"}
	}

	prior, err := s.store.Load(ctx, ev.OrderID)
	if err != nil {
		return nil, false, err
	}
	if prior != nil {
		return prior, true, nil
	}

	res, err = Reserve(ev)
	if err != nil {
		return nil, false, err
	}

	if err := retry.Sleep(ctx, s.latency); err != nil {
		return nil, false, err
	}

	stored, err := s.store.Save(ctx, res)
	if err != nil {
		return nil, false, err
	}
	return stored, stored != res, nil
}

// Handle is the pipeline handler for the inventory group.
func (s *Service) Handle(ctx context.Context, rec broker.Record, ev *order.Event) error {
	res, duplicate, err := s.Reserve(ctx, ev)
	if err != nil {
		return err
	}

	if duplicate {
		s.logger.Info("Order already reserved, skipping",
			zap.String("order_id", res.OrderID),
			zap.Int("partition", rec.Partition),
			zap.Int64("offset", rec.Offset),
		)
		return nil
	}

	s.logger.Info("Inventory reserved",
		zap.ByteString("key", rec.Key),
		zap.Int("partition", rec.Partition),
		zap.Int64("offset", rec.Offset),
		zap.Int("reserved_items", len(res.Reserved)),
	)
	return nil
}
