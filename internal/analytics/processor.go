package analytics

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/broker"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/order"
)

// Processor is the analytics pipeline handler. It logs a summary every Nth order and a
// per-record line otherwise. It never fails a record.
type Processor struct {
	state  *State
	every  int
	topK   int
	logger *zap.Logger
}

// NewProcessor creates a processor summarizing every `every` orders with the top topK skus.
func NewProcessor(every, topK int, logger *zap.Logger) (*Processor, error) {
	if every <= 0 {
		return nil, fmt.Errorf("summary interval must be positive, got %d", every)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("top sku count must be positive, got %d", topK)
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	return &Processor{
		state:  NewState(),
		every:  every,
		topK:   topK,
		logger: logger,
	}, nil
}

// Handle folds ev into the running aggregate.
func (p *Processor) Handle(ctx context.Context, rec broker.Record, ev *order.Event) error {
	p.state.Apply(ev)

	if p.state.Orders%p.every == 0 {
		sum := Summarize(p.state, p.topK)
		p.logger.Info("Analytics summary",
			zap.Int("orders", sum.Orders),
			zap.String("revenue", sum.Revenue.StringFixed(2)),
			zap.Array("top", topSKUs(sum.Top)),
		)
		return nil
	}

	p.logger.Info("Consumed order",
		zap.String("order_id", ev.OrderID),
		zap.Int("partition", rec.Partition),
		zap.Int64("offset", rec.Offset),
	)
	return nil
}

// Snapshot summarizes the current aggregate.
func (p *Processor) Snapshot() Summary {
	return Summarize(p.state, p.topK)
}

type topSKUs []SKUCount

func (t topSKUs) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, c := range t {
		if err := enc.AppendObject(c); err != nil {
			return err
		}
	}
	return nil
}

// MarshalLogObject encodes the count as a {sku, qty} log object.
func (c SKUCount) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("sku", c.SKU)
	enc.AddInt("qty", c.Qty)
	return nil
}
