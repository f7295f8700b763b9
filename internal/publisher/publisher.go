// Package publisher turns validated order requests into OrderCreated records and confirms
// their durable delivery before reporting success.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/broker"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/obs"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/order"
)

// StatusSent is reported once the broker confirmed the record.
const StatusSent = "sent"

// ErrBrokerUnavailable means delivery could not be confirmed within the flush deadline.
// The record may still land later, so callers must treat it as "no guarantee", not "failed".
var ErrBrokerUnavailable = errors.New("broker unavailable, message not delivered")

// Result is returned for a confirmed publish.
type Result struct {
	OrderID string       `json:"order_id"`
	Event   *order.Event `json:"event"`
	Status  string       `json:"status"`
}

// Options configures a Publisher. Zero values get defaults.
type Options struct {
	Topic        string
	FlushTimeout time.Duration
	Metrics      *obs.Metrics
	// Clock and NewID are replaceable in tests.
	Clock func() time.Time
	NewID func() string
}

// Publisher is safe for concurrent use when its Producer is.
type Publisher struct {
	producer     broker.Producer
	topic        string
	flushTimeout time.Duration
	metrics      *obs.Metrics
	logger       *zap.Logger
	now          func() time.Time
	newID        func() string
}

// New creates a Publisher writing to opts.Topic through producer.
func New(producer broker.Producer, opts Options, logger *zap.Logger) (*Publisher, error) {
	if producer == nil {
		return nil, fmt.Errorf("producer cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if opts.Topic == "" {
		opts.Topic = "orders"
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = 10 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	return &Publisher{
		producer:     producer,
		topic:        opts.Topic,
		flushTimeout: opts.FlushTimeout,
		metrics:      opts.Metrics,
		logger:       logger,
		now:          opts.Clock,
		newID:        opts.NewID,
	}, nil
}

// Publish validates req, builds the event and blocks until the broker acknowledged it
// or the flush deadline elapsed.
//
// Invalid requests fail with *order.ValidationError and never reach the broker. An
// unconfirmed delivery fails with ErrBrokerUnavailable.
func (p *Publisher) Publish(ctx context.Context, req *order.Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		p.metrics.IncrementPublishFailed("validation")
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	event := p.newEvent(req)

	value, err := order.Encode(event)
	if err != nil {
		return nil, err
	}

	delivered := make(chan error, 1)
	onDelivery := func(rec broker.Record, err error) {
		if err != nil {
			p.logger.Error("Delivery failed",
				zap.String("order_id", event.OrderID),
				zap.String("topic", rec.Topic),
				zap.Error(err),
			)
		} else {
			p.logger.Debug("Delivered record",
				zap.String("order_id", event.OrderID),
				zap.String("topic", rec.Topic),
				zap.Int("partition", rec.Partition),
				zap.Int64("offset", rec.Offset),
			)
		}
		delivered <- err
	}

	if err := p.producer.Produce(p.topic, []byte(event.OrderID), value, onDelivery); err != nil {
		p.metrics.IncrementPublishFailed("produce")
		p.logger.Error("Failed to produce order event",
			zap.String("order_id", event.OrderID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}

	// Only this record's callback counts; the producer may carry other publishes' records.
	timer := time.NewTimer(p.flushTimeout)
	defer timer.Stop()

	select {
	case err := <-delivered:
		if err != nil {
			p.metrics.IncrementPublishFailed("delivery")
			return nil, fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
		}
	case <-timer.C:
		p.metrics.IncrementPublishFailed("flush_timeout")
		p.logger.Warn("Delivery not confirmed before flush deadline",
			zap.String("order_id", event.OrderID),
			zap.Duration("flush_timeout", p.flushTimeout),
		)
		return nil, fmt.Errorf("%w: delivery of order %s not confirmed within %s", ErrBrokerUnavailable, event.OrderID, p.flushTimeout)
	}

	p.metrics.ObservePublish(time.Since(start))
	p.logger.Info("Order event published",
		zap.String("order_id", event.OrderID),
		zap.String("customer_id", event.CustomerID),
		zap.Int("items", len(event.Items)),
		zap.Float64("total", event.Total),
	)

	return &Result{OrderID: event.OrderID, Event: event, Status: StatusSent}, nil
}

// Close flushes and closes the underlying producer.
func (p *Publisher) Close() error {
	if remaining := p.producer.Flush(p.flushTimeout); remaining > 0 {
		p.logger.Warn("Closing publisher with undelivered records", zap.Int("remaining", remaining))
	}
	return p.producer.Close()
}

func (p *Publisher) newEvent(req *order.Request) *order.Event {
	items := make([]order.Item, len(req.Items))
	copy(items, req.Items)

	return &order.Event{
		EventType:     order.EventTypeOrderCreated,
		OrderID:       p.newID(),
		CustomerID:    req.CustomerID,
		CreatedAtMs:   p.now().UnixMilli(),
		Items:         items,
		Total:         order.Total(items),
		SchemaVersion: order.SchemaVersion,
	}
}
