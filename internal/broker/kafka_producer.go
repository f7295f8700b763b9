package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ProducerConfig holds kafka writer settings.
type ProducerConfig struct {
	Brokers      []string
	MaxAttempts  int
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// KafkaProducer is an asynchronous kafka-go writer that reports every record through its
// DeliveryFunc and tracks in-flight records so callers can Flush with a deadline.
type KafkaProducer struct {
	writer *kafka.Writer
	logger *zap.Logger

	mu       sync.Mutex
	inflight int
	drained  chan struct{}
}

// NewKafkaProducer creates a producer that requires acknowledgement from all in-sync
// replicas and routes records to partitions by key hash.
func NewKafkaProducer(cfg ProducerConfig, logger *zap.Logger) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 5 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	p := &KafkaProducer{
		logger:  logger,
		drained: closedChan(),
	}
	p.writer = &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            cfg.MaxAttempts,
		BatchTimeout:           cfg.BatchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
		ReadTimeout:            cfg.WriteTimeout,
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion:             p.complete,
		ErrorLogger:            kafka.LoggerFunc(logger.Sugar().Errorf),
	}

	logger.Info("Kafka producer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("acks", "all"),
	)
	return p, nil
}

// Produce queues a record. The writer is asynchronous so a nil error only means the
// record was accepted for sending.
func (p *KafkaProducer) Produce(topic string, key, value []byte, onDelivery DeliveryFunc) error {
	msg := kafka.Message{
		Topic:      topic,
		Key:        key,
		Value:      value,
		Time:       time.Now(),
		WriterData: onDelivery,
	}

	p.track(1)
	if err := p.writer.WriteMessages(context.Background(), msg); err != nil {
		p.track(-1)
		return fmt.Errorf("failed to queue record: %w", err)
	}
	return nil
}

// Flush waits until all in-flight records completed or timeout elapsed.
func (p *KafkaProducer) Flush(timeout time.Duration) int {
	p.mu.Lock()
	if p.inflight == 0 {
		p.mu.Unlock()
		return 0
	}
	drained := p.drained
	p.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-drained:
	case <-timer.C:
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inflight
}

// Close flushes outstanding batches and closes the writer.
func (p *KafkaProducer) Close() error {
	if p.writer != nil {
		p.logger.Info("Closing Kafka producer")
		if err := p.writer.Close(); err != nil {
			return fmt.Errorf("failed to close Kafka writer: %w", err)
		}
	}
	return nil
}

// complete is the writer's Completion hook. Callbacks run before the in-flight count
// drops so a returning Flush has seen every delivery report.
func (p *KafkaProducer) complete(messages []kafka.Message, err error) {
	for _, msg := range messages {
		rec := Record{
			Topic:     msg.Topic,
			Partition: msg.Partition,
			Offset:    msg.Offset,
			Key:       msg.Key,
			Value:     msg.Value,
			Time:      msg.Time,
		}
		if cb, ok := msg.WriterData.(DeliveryFunc); ok && cb != nil {
			cb(rec, err)
		}
		p.track(-1)
	}
}

func (p *KafkaProducer) track(delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inflight == 0 && delta > 0 {
		p.drained = make(chan struct{})
	}
	p.inflight += delta
	if p.inflight <= 0 {
		p.inflight = 0
		select {
		case <-p.drained:
		default:
			close(p.drained)
		}
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
