// Package broker defines the broker capabilities the publisher and consumer loop rely on
// and implements them on top of kafka-go.
package broker

import (
	"context"
	"time"
)

// Record is a single keyed entry of a partitioned log together with its position.
type Record struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Time      time.Time
}

// DeliveryFunc is invoked once per produced record when the broker accepted or rejected it.
type DeliveryFunc func(rec Record, err error)

// Producer submits records asynchronously and confirms them through Flush.
// Implementations must be safe for concurrent use.
type Producer interface {
	// Produce queues a record for delivery. onDelivery may be nil.
	Produce(topic string, key, value []byte, onDelivery DeliveryFunc) error
	// Flush blocks until every queued record was acknowledged or timeout elapsed and
	// returns the number of records still undelivered.
	Flush(timeout time.Duration) int
	Close() error
}

// Consumer reads a topic on behalf of one consumer group. It is owned by a single goroutine.
type Consumer interface {
	// Poll waits up to timeout for the next record. It returns (nil, nil) when nothing arrived.
	Poll(ctx context.Context, timeout time.Duration) (*Record, error)
	// Commit durably advances the group cursor past rec.
	Commit(ctx context.Context, rec Record) error
	// Rewind makes the next Poll present rec again.
	Rewind(rec Record) error
	Close() error
}
