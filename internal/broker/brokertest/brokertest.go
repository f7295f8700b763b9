// Package brokertest provides in-memory broker doubles for tests.
package brokertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/broker"
)

// AckMode controls how the fake producer answers produced records.
type AckMode int

const (
	// AckAll acknowledges every record immediately.
	AckAll AckMode = iota
	// NeverAck leaves every record in flight forever.
	NeverAck
	// FailAll reports a delivery error for every record.
	FailAll
	// HoldAll keeps every record in flight until Ack releases it.
	HoldAll
)

// ErrDelivery is reported to delivery callbacks in FailAll mode.
var ErrDelivery = fmt.Errorf("simulated delivery failure")

// Producer is an in-memory broker.Producer.
type Producer struct {
	Mode AckMode
	// ProduceErr, when set, is returned by Produce and nothing is recorded.
	ProduceErr error

	mu      sync.Mutex
	records []broker.Record
	pending int
	held    map[int64]broker.DeliveryFunc
	flushes []time.Duration
	closed  bool
}

var _ broker.Producer = (*Producer)(nil)

// Produce records the write and answers it according to Mode.
func (p *Producer) Produce(topic string, key, value []byte, onDelivery broker.DeliveryFunc) error {
	if p.ProduceErr != nil {
		return p.ProduceErr
	}

	p.mu.Lock()
	rec := broker.Record{
		Topic:  topic,
		Offset: int64(len(p.records)),
		Key:    append([]byte(nil), key...),
		Value:  append([]byte(nil), value...),
		Time:   time.Now(),
	}
	p.records = append(p.records, rec)
	mode := p.Mode
	switch mode {
	case NeverAck:
		p.pending++
	case HoldAll:
		p.pending++
		if p.held == nil {
			p.held = make(map[int64]broker.DeliveryFunc)
		}
		p.held[rec.Offset] = onDelivery
	}
	p.mu.Unlock()

	if onDelivery == nil {
		return nil
	}
	switch mode {
	case AckAll:
		onDelivery(rec, nil)
	case FailAll:
		onDelivery(rec, ErrDelivery)
	}
	return nil
}

// Flush returns the number of records that were never acknowledged. It does not sleep.
func (p *Producer) Flush(timeout time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushes = append(p.flushes, timeout)
	return p.pending
}

// Ack reports the delivery of a held record with err. It returns false when no record
// with that offset is held.
func (p *Producer) Ack(offset int64, err error) bool {
	p.mu.Lock()
	cb, ok := p.held[offset]
	if !ok {
		p.mu.Unlock()
		return false
	}
	delete(p.held, offset)
	p.pending--
	rec := p.records[offset]
	p.mu.Unlock()

	if cb != nil {
		cb(rec, err)
	}
	return true
}

// Close marks the producer closed.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Records returns a copy of every produced record.
func (p *Producer) Records() []broker.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]broker.Record(nil), p.records...)
}

// Flushes returns the timeouts Flush was called with.
func (p *Producer) Flushes() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Duration(nil), p.flushes...)
}

// Closed reports whether Close was called.
func (p *Producer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Step is one scripted Poll outcome. A zero Step is an idle poll.
type Step struct {
	Record *broker.Record
	Err    error
}

// Consumer is a scripted broker.Consumer. Rewind pushes the record back to the front of
// the script, the way seeking to an uncommitted offset would.
type Consumer struct {
	// OnDrained is called once when Poll runs out of script.
	OnDrained func()
	// CommitErr, when set, is returned by Commit.
	CommitErr error

	mu      sync.Mutex
	steps   []Step
	calls   []string
	commits []int64
	drained bool
	closed  bool
}

var _ broker.Consumer = (*Consumer)(nil)

// NewConsumer creates a consumer that replays steps in order.
func NewConsumer(steps ...Step) *Consumer {
	return &Consumer{steps: steps}
}

// Rec builds a record step on topic "orders" partition 0.
func Rec(offset int64, key, value string) Step {
	return Step{Record: &broker.Record{
		Topic:  "orders",
		Offset: offset,
		Key:    []byte(key),
		Value:  []byte(value),
	}}
}

// Poll returns the next scripted step.
func (c *Consumer) Poll(ctx context.Context, timeout time.Duration) (*broker.Record, error) {
	c.mu.Lock()
	if len(c.steps) == 0 {
		c.calls = append(c.calls, "poll:idle")
		onDrained := c.OnDrained
		first := !c.drained
		c.drained = true
		c.mu.Unlock()
		if first && onDrained != nil {
			onDrained()
		}
		return nil, nil
	}

	step := c.steps[0]
	c.steps = c.steps[1:]
	switch {
	case step.Record != nil:
		c.calls = append(c.calls, fmt.Sprintf("poll:%d", step.Record.Offset))
	case step.Err != nil:
		c.calls = append(c.calls, "poll:error")
	default:
		c.calls = append(c.calls, "poll:idle")
	}
	c.mu.Unlock()

	if step.Record != nil {
		rec := *step.Record
		return &rec, nil
	}
	return nil, step.Err
}

// Commit records the committed offset.
func (c *Consumer) Commit(ctx context.Context, rec broker.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.CommitErr != nil {
		c.calls = append(c.calls, fmt.Sprintf("commit-failed:%d", rec.Offset))
		return c.CommitErr
	}
	c.calls = append(c.calls, fmt.Sprintf("commit:%d", rec.Offset))
	c.commits = append(c.commits, rec.Offset)
	return nil
}

// Rewind schedules rec to be returned by the next Poll.
func (c *Consumer) Rewind(rec broker.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, fmt.Sprintf("rewind:%d", rec.Offset))
	c.steps = append([]Step{{Record: &rec}}, c.steps...)
	return nil
}

// Close marks the consumer closed.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Calls returns the ordered log of poll/commit/rewind calls.
func (c *Consumer) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// Commits returns every committed offset in order.
func (c *Consumer) Commits() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.commits...)
}

// Closed reports whether Close was called.
func (c *Consumer) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
