// Package dlq provides dead-letter queue functionality for failed messages
package dlq

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/broker"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/config"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/retry"
)

// messageWriter is the part of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer handles publishing failed messages to the dead-letter queue
type Producer struct {
	writer messageWriter
	logger *zap.Logger
	topic  string
	retry  config.RetryConfig
}

// NewProducer creates a new DLQ producer
func NewProducer(cfg *config.Config, logger *zap.Logger) (*Producer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.DLQ.Topic == "" {
		return nil, fmt.Errorf("dlq topic is required")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.DLQ.Brokers...),
		Topic:                  cfg.DLQ.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
		ReadTimeout:            10 * time.Second,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.DLQ.Topic,
		retry:  cfg.Retry,
	}, nil
}

// Publish sends a record that exhausted its processing attempts to the DLQ.
// The original key and value are kept; provenance travels in headers.
func (p *Producer) Publish(ctx context.Context, rec broker.Record, attempts int, errorMsg string) error {
	msg := kafka.Message{
		Key:     rec.Key,
		Value:   rec.Value,
		Headers: buildHeaders(rec, attempts, errorMsg, time.Now()),
		Time:    time.Now(),
	}

	attempt := 0
	err := retry.DoWithRetry(ctx, &p.retry, func() error {
		attempt++
		werr := p.writer.WriteMessages(ctx, msg)
		if werr != nil {
			p.logger.Warn("Failed to publish to DLQ, will retry",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", p.retry.MaxAttempts+1),
				zap.Error(werr),
			)
		}
		return werr
	})
	if err != nil {
		p.logger.Error("Failed to publish message to DLQ after all attempts",
			zap.String("dlq_topic", p.topic),
			zap.String("original_topic", rec.Topic),
			zap.Int64("original_offset", rec.Offset),
			zap.Error(err),
		)
		return fmt.Errorf("failed to publish to DLQ after %d attempts: %w", attempt, err)
	}

	p.logger.Info("Message published to DLQ",
		zap.String("dlq_topic", p.topic),
		zap.String("original_topic", rec.Topic),
		zap.Int("original_partition", rec.Partition),
		zap.Int64("original_offset", rec.Offset),
		zap.Int("processing_attempts", attempts),
		zap.String("error", errorMsg),
	)
	return nil
}

// Close closes the DLQ producer and releases resources
func (p *Producer) Close() error {
	if p.writer != nil {
		p.logger.Info("Closing DLQ producer")
		return p.writer.Close()
	}
	return nil
}

func buildHeaders(rec broker.Record, attempts int, errorMsg string, now time.Time) []kafka.Header {
	return []kafka.Header{
		{Key: "error_message", Value: []byte(errorMsg)},
		{Key: "timestamp", Value: []byte(now.Format(time.RFC3339))},
		{Key: "original_topic", Value: []byte(rec.Topic)},
		{Key: "original_partition", Value: []byte(strconv.Itoa(rec.Partition))},
		{Key: "original_offset", Value: []byte(strconv.FormatInt(rec.Offset, 10))},
		{Key: "processing_attempts", Value: []byte(strconv.Itoa(attempts))},
	}
}
