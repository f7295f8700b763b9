// Package consumer implements the reliable consumer loop: poll, classify broker errors,
// process each record and commit its offset only when the commit mode allows it.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/broker"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/config"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/obs"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/order"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/pipeline"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/retry"
)

// DeadLetterer receives records that exhausted their processing attempts.
type DeadLetterer interface {
	Publish(ctx context.Context, rec broker.Record, attempts int, errorMsg string) error
}

// Options configures a Loop. Zero durations get the defaults of one second.
type Options struct {
	CommitMode  config.CommitMode
	PollTimeout time.Duration
	Backoff     time.Duration
	// MaxAttempts > 0 together with DLQ dead-letters a record after that many failures.
	MaxAttempts int
	DLQ         DeadLetterer
	Metrics     *obs.Metrics
}

type recordKey struct {
	topic     string
	partition int
	offset    int64
}

// Loop consumes one consumer group sequentially. It is not safe for concurrent use.
type Loop struct {
	consumer    broker.Consumer
	handler     pipeline.Handler
	logger      *zap.Logger
	metrics     *obs.Metrics
	mode        config.CommitMode
	pollTimeout time.Duration
	backoff     time.Duration
	maxAttempts int
	dlq         DeadLetterer

	closers []io.Closer

	failing  recordKey
	failures int
}

// New creates a loop reading from c and handing every record to h.
func New(c broker.Consumer, h pipeline.Handler, opts Options, logger *zap.Logger) (*Loop, error) {
	if c == nil {
		return nil, fmt.Errorf("consumer cannot be nil")
	}
	if h == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	switch opts.CommitMode {
	case config.CommitAuto, config.CommitManual:
	case "":
		opts.CommitMode = config.CommitManual
	default:
		return nil, fmt.Errorf("unknown commit mode %q", opts.CommitMode)
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}

	return &Loop{
		consumer:    c,
		handler:     h,
		logger:      logger,
		metrics:     opts.Metrics,
		mode:        opts.CommitMode,
		pollTimeout: opts.PollTimeout,
		backoff:     opts.Backoff,
		maxAttempts: opts.MaxAttempts,
		dlq:         opts.DLQ,
	}, nil
}

// Run polls until ctx is canceled or the broker reports a fatal error.
// Cancellation is observed between iterations; an in-flight poll or record finishes first.
// It returns ctx.Err() on shutdown and the wrapped broker error otherwise.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("Starting consumer loop",
		zap.String("commitMode", string(l.mode)),
		zap.Duration("pollTimeout", l.pollTimeout),
		zap.Duration("backoff", l.backoff),
		zap.Int("maxAttempts", l.maxAttempts),
	)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Context cancelled, stopping consumer loop")
			return ctx.Err()
		default:
		}

		if err := l.poll(ctx); err != nil {
			return err
		}
	}
}

// Close releases the broker consumer and any dead-letter producer owned by the loop.
func (l *Loop) Close() error {
	return closeAll(l.consumer, l.closers)
}

func (l *Loop) poll(ctx context.Context) error {
	rec, err := l.consumer.Poll(ctx, l.pollTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return l.handlePollError(ctx, err)
	}
	if rec == nil {
		return nil
	}

	l.metrics.IncrementRecordsConsumed()
	return l.handleRecord(ctx, *rec)
}

func (l *Loop) handlePollError(ctx context.Context, err error) error {
	class := broker.Classify(err)
	if class != broker.ClassEndOfPartition {
		l.metrics.IncrementBrokerErrors(class.String())
	}

	switch class {
	case broker.ClassEndOfPartition:
		return nil
	case broker.ClassBootstrap:
		l.logger.Warn("Topic not ready yet, waiting", zap.Error(err), zap.Duration("backoff", l.backoff))
		retry.Sleep(ctx, l.backoff)
		return nil
	case broker.ClassTransient:
		l.logger.Warn("Broker not ready yet, waiting", zap.Error(err), zap.Duration("backoff", l.backoff))
		retry.Sleep(ctx, l.backoff)
		return nil
	default:
		l.logger.Error("Fatal broker error, stopping consumer loop", zap.Error(err))
		return fmt.Errorf("fatal broker error: %w", err)
	}
}

func (l *Loop) handleRecord(ctx context.Context, rec broker.Record) error {
	ev, err := pipeline.Process(ctx, rec, l.handler)
	if err != nil {
		if errors.Is(err, pipeline.ErrContextCanceled) && ctx.Err() != nil {
			// Not committed, so the record is redelivered after restart.
			l.logger.Info("Record processing interrupted by shutdown", recordFields(rec, ev)...)
			return nil
		}
		return l.handleFailure(ctx, rec, ev, err)
	}

	l.metrics.IncrementRecordsProcessed()
	l.clearFailure()

	if l.mode == config.CommitManual {
		if err := l.commit(ctx, rec); err != nil {
			return err
		}
	}

	l.logger.Debug("Record processed", recordFields(rec, ev)...)
	return nil
}

func (l *Loop) handleFailure(ctx context.Context, rec broker.Record, ev *order.Event, procErr error) error {
	l.metrics.IncrementRecordsFailed()

	if l.mode == config.CommitAuto {
		l.logger.Error("Record processing failed, skipping",
			append(recordFields(rec, ev), zap.Error(procErr))...)
		return nil
	}

	attempts := l.recordFailure(rec)

	if l.maxAttempts > 0 && attempts >= l.maxAttempts && l.dlq != nil {
		err := l.dlq.Publish(ctx, rec, attempts, procErr.Error())
		if err == nil {
			l.metrics.IncrementDLQMessages()
			l.clearFailure()
			l.logger.Warn("Record dead-lettered after repeated failures",
				append(recordFields(rec, ev), zap.Int("attempts", attempts), zap.Error(procErr))...)
			return l.commit(ctx, rec)
		}
		l.logger.Error("Dead-letter publish failed, record stays uncommitted",
			append(recordFields(rec, ev), zap.Error(err))...)
	}

	l.logger.Error("Record processing failed (no commit, will retry)",
		append(recordFields(rec, ev), zap.Int("attempt", attempts), zap.Error(procErr))...)

	retry.Sleep(ctx, l.backoff)

	if err := l.consumer.Rewind(rec); err != nil {
		return fmt.Errorf("rewind to offset %d: %w", rec.Offset, err)
	}
	l.metrics.IncrementRedeliveries()
	return nil
}

// commit advances the group cursor past rec. Recoverable commit errors are logged and
// left to the next commit, which covers every earlier offset of the partition.
func (l *Loop) commit(ctx context.Context, rec broker.Record) error {
	if err := l.consumer.Commit(ctx, rec); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		class := broker.Classify(err)
		l.metrics.IncrementBrokerErrors(class.String())
		if class == broker.ClassFatal {
			l.logger.Error("Fatal commit error, stopping consumer loop",
				append(recordFields(rec, nil), zap.Error(err))...)
			return fmt.Errorf("fatal commit error: %w", err)
		}
		l.logger.Warn("Commit failed, record may be redelivered",
			append(recordFields(rec, nil), zap.Error(err))...)
		retry.Sleep(ctx, l.backoff)
		return nil
	}

	l.metrics.IncrementOffsetsCommitted()
	return nil
}

func (l *Loop) recordFailure(rec broker.Record) int {
	key := recordKey{topic: rec.Topic, partition: rec.Partition, offset: rec.Offset}
	if l.failures > 0 && l.failing == key {
		l.failures++
	} else {
		l.failing = key
		l.failures = 1
	}
	return l.failures
}

func (l *Loop) clearFailure() {
	l.failing = recordKey{}
	l.failures = 0
}

func recordFields(rec broker.Record, ev *order.Event) []zap.Field {
	fields := []zap.Field{
		zap.String("topic", rec.Topic),
		zap.Int("partition", rec.Partition),
		zap.Int64("offset", rec.Offset),
		zap.ByteString("key", rec.Key),
	}
	if ev != nil {
		fields = append(fields, zap.String("order_id", ev.OrderID))
	}
	return fields
}
