package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ConsumerConfig holds kafka reader settings for one consumer group.
type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	// AutoCommit lets the reader commit read offsets every CommitInterval regardless of
	// processing outcome. When false offsets move only through Commit.
	AutoCommit     bool
	CommitInterval time.Duration
}

// KafkaConsumer adapts a kafka-go group reader to the Consumer interface.
type KafkaConsumer struct {
	reader     *kafka.Reader
	logger     *zap.Logger
	autoCommit bool
	redeliver  *Record
}

// NewKafkaConsumer creates a group reader that starts from the earliest retained offset
// the first time the group connects.
func NewKafkaConsumer(cfg ConsumerConfig, logger *zap.Logger) (*KafkaConsumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" || cfg.GroupID == "" {
		return nil, fmt.Errorf("topic and group id are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	commitInterval := time.Duration(0) // Manual commit only
	if cfg.AutoCommit {
		commitInterval = cfg.CommitInterval
		if commitInterval <= 0 {
			commitInterval = 5 * time.Second
		}
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		StartOffset:    kafka.FirstOffset,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        time.Second,
		CommitInterval: commitInterval,
		ErrorLogger:    kafka.LoggerFunc(logger.Sugar().Errorf),
	})

	logger.Info("Kafka consumer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
		zap.String("groupID", cfg.GroupID),
		zap.Bool("autoCommit", cfg.AutoCommit),
	)

	return &KafkaConsumer{
		reader:     reader,
		logger:     logger,
		autoCommit: cfg.AutoCommit,
	}, nil
}

// Poll returns the next record, a rewound record first if there is one.
// An elapsed timeout is reported as (nil, nil). The reader keeps retrying missing topics
// and unreachable brokers internally, so those conditions surface here as idle polls.
func (c *KafkaConsumer) Poll(ctx context.Context, timeout time.Duration) (*Record, error) {
	if c.redeliver != nil {
		rec := c.redeliver
		c.redeliver = nil
		return rec, nil
	}

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		msg kafka.Message
		err error
	)
	if c.autoCommit {
		msg, err = c.reader.ReadMessage(pollCtx)
	} else {
		msg, err = c.reader.FetchMessage(pollCtx)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("kafka reader closed: %w", err)
		}
		return nil, err
	}

	return &Record{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Value:     msg.Value,
		Time:      msg.Time,
	}, nil
}

// Commit synchronously commits the offset following rec for the group.
func (c *KafkaConsumer) Commit(ctx context.Context, rec Record) error {
	msg := kafka.Message{Topic: rec.Topic, Partition: rec.Partition, Offset: rec.Offset}
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to commit offset %d on partition %d: %w", rec.Offset, rec.Partition, err)
	}
	c.logger.Debug("Committed offset",
		zap.String("topic", rec.Topic),
		zap.Int("partition", rec.Partition),
		zap.Int64("offset", rec.Offset),
	)
	return nil
}

// Rewind re-presents rec on the next Poll. Group readers cannot seek, so the record is
// held locally; nothing past it is committed while it is outstanding. The slot is emptied
// by that next Poll, so if the partition was revoked in between the record is processed
// once more and its commit fails with a rebalance error, which Classify treats as transient.
func (c *KafkaConsumer) Rewind(rec Record) error {
	if c.autoCommit {
		return fmt.Errorf("rewind is not supported with auto commit")
	}
	c.redeliver = &rec
	return nil
}

// Close closes the Kafka reader and leaves the consumer group.
func (c *KafkaConsumer) Close() error {
	if c.reader != nil {
		c.logger.Info("Closing Kafka consumer")
		if err := c.reader.Close(); err != nil {
			return fmt.Errorf("failed to close Kafka reader: %w", err)
		}
	}
	return nil
}
