package consumer

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/broker"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/config"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/dlq"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/obs"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/pipeline"
)

// NewKafkaLoop builds a loop over a kafka-go group reader configured from cfg.
// A dead-letter producer is attached when cfg names a DLQ topic and the group commits
// manually. Close on the returned loop releases both.
func NewKafkaLoop(cfg *config.Config, h pipeline.Handler, metrics *obs.Metrics, logger *zap.Logger) (*Loop, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	c, err := broker.NewKafkaConsumer(broker.ConsumerConfig{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          cfg.Kafka.Topic,
		GroupID:        cfg.Kafka.GroupID,
		AutoCommit:     cfg.Consumer.CommitMode == config.CommitAuto,
		CommitInterval: cfg.Consumer.CommitInterval,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	opts := Options{
		CommitMode:  cfg.Consumer.CommitMode,
		PollTimeout: cfg.Consumer.PollTimeout,
		Backoff:     cfg.Consumer.Backoff,
		MaxAttempts: cfg.Consumer.MaxAttempts,
		Metrics:     metrics,
	}

	var closers []io.Closer
	if cfg.DLQ.Topic != "" && cfg.Consumer.CommitMode == config.CommitManual {
		d, err := dlq.NewProducer(cfg, logger)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to create DLQ producer: %w", err)
		}
		opts.DLQ = d
		closers = append(closers, d)
	}

	loop, err := New(c, h, opts, logger)
	if err != nil {
		for _, cl := range closers {
			_ = cl.Close()
		}
		_ = c.Close()
		return nil, err
	}
	loop.closers = closers

	logger.Info("Kafka consumer loop configured",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("groupID", cfg.Kafka.GroupID),
		zap.String("commitMode", string(cfg.Consumer.CommitMode)),
		zap.String("dlqTopic", cfg.DLQ.Topic),
	)
	return loop, nil
}

func closeAll(primary io.Closer, rest []io.Closer) error {
	errs := []error{primary.Close()}
	for _, c := range rest {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
