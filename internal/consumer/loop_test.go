package consumer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/broker"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/broker/brokertest"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/config"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/obs"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/order"
	"github.com/Sheliakhin-Golang-portfolio/OrderStream/internal/pipeline"
)

func payload(t *testing.T, orderID string) string {
	t.Helper()
	b, err := order.Encode(&order.Event{
		EventType:     order.EventTypeOrderCreated,
		OrderID:       orderID,
		CustomerID:    "c1",
		CreatedAtMs:   1700000000000,
		Items:         []order.Item{{SKU: "A", Qty: 1, Price: 10}},
		Total:         10,
		SchemaVersion: order.SchemaVersion,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return string(b)
}

// recordingHandler fails the offsets listed in failures the given number of times.
type recordingHandler struct {
	mu       sync.Mutex
	failures map[int64]int
	handled  []int64
}

func (h *recordingHandler) Handle(ctx context.Context, rec broker.Record, ev *order.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failures[rec.Offset] > 0 {
		h.failures[rec.Offset]--
		return fmt.Errorf("reservation backend down for %s", ev.OrderID)
	}
	h.handled = append(h.handled, rec.Offset)
	return nil
}

func (h *recordingHandler) Handled() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int64(nil), h.handled...)
}

type fakeDLQ struct {
	mu        sync.Mutex
	err       error
	published []int64
	attempts  []int
}

func (d *fakeDLQ) Publish(ctx context.Context, rec broker.Record, attempts int, errorMsg string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.published = append(d.published, rec.Offset)
	d.attempts = append(d.attempts, attempts)
	return nil
}

// runUntilDrained runs the loop until the scripted consumer has no steps left.
func runUntilDrained(t *testing.T, c *brokertest.Consumer, h pipeline.Handler, opts Options, logger *zap.Logger) error {
	t.Helper()
	if opts.Backoff == 0 {
		opts.Backoff = time.Millisecond
	}
	loop, err := New(c, h, opts, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.OnDrained = cancel

	return loop.Run(ctx)
}

func assertCalls(t *testing.T, got, want []string) {
	t.Helper()
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("calls = %v, want %v", got, want)
	}
}

func TestNew_InvalidArguments(t *testing.T) {
	t.Parallel()

	c := brokertest.NewConsumer()
	h := &recordingHandler{}

	tests := []struct {
		name string
		c    broker.Consumer
		h    pipeline.Handler
		opts Options
		l    *zap.Logger
	}{
		{"nil consumer", nil, h, Options{}, zap.NewNop()},
		{"nil handler", c, nil, Options{}, zap.NewNop()},
		{"nil logger", c, h, Options{}, nil},
		{"unknown commit mode", c, h, Options{CommitMode: "sometimes"}, zap.NewNop()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.c, tt.h, tt.opts, tt.l); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	loop, err := New(brokertest.NewConsumer(), &recordingHandler{}, Options{}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if loop.mode != config.CommitManual {
		t.Errorf("mode = %q, want manual", loop.mode)
	}
	if loop.pollTimeout != time.Second || loop.backoff != time.Second {
		t.Errorf("pollTimeout = %v, backoff = %v, want 1s each", loop.pollTimeout, loop.backoff)
	}
}

func TestRun_ManualCommitsEachRecordOnceBeforeNextPoll(t *testing.T) {
	t.Parallel()

	c := brokertest.NewConsumer(
		brokertest.Rec(0, "o-0", payload(t, "o-0")),
		brokertest.Rec(1, "o-1", payload(t, "o-1")),
		brokertest.Rec(2, "o-2", payload(t, "o-2")),
	)
	h := &recordingHandler{}
	reg := prometheus.NewRegistry()
	m := obs.NewMetrics("inventory", reg)

	err := runUntilDrained(t, c, h, Options{CommitMode: config.CommitManual, Metrics: m}, zap.NewNop())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err = %v, want context.Canceled", err)
	}

	assertCalls(t, c.Calls(), []string{
		"poll:0", "commit:0",
		"poll:1", "commit:1",
		"poll:2", "commit:2",
		"poll:idle",
	})
	if got := testutil.ToFloat64(m.OffsetsCommittedTotal); got != 3 {
		t.Errorf("offsets committed = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.RecordsProcessedTotal); got != 3 {
		t.Errorf("records processed = %v, want 3", got)
	}
}

func TestRun_ManualFailureRedeliversBeforeLaterCommit(t *testing.T) {
	t.Parallel()

	c := brokertest.NewConsumer(
		brokertest.Rec(0, "o-0", payload(t, "o-0")),
		brokertest.Rec(1, "o-1", payload(t, "o-1")),
		brokertest.Rec(2, "o-2", payload(t, "o-2")),
	)
	h := &recordingHandler{failures: map[int64]int{1: 2}}
	core, logs := observer.New(zapcore.InfoLevel)
	m := obs.NewMetrics("inventory", prometheus.NewRegistry())

	err := runUntilDrained(t, c, h, Options{CommitMode: config.CommitManual, Metrics: m}, zap.New(core))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err = %v, want context.Canceled", err)
	}

	assertCalls(t, c.Calls(), []string{
		"poll:0", "commit:0",
		"poll:1", "rewind:1",
		"poll:1", "rewind:1",
		"poll:1", "commit:1",
		"poll:2", "commit:2",
		"poll:idle",
	})

	failures := logs.FilterMessage("Record processing failed (no commit, will retry)").All()
	if len(failures) != 2 {
		t.Fatalf("failure logs = %d, want 2", len(failures))
	}
	fields := failures[0].ContextMap()
	if fields["offset"] != int64(1) {
		t.Errorf("offset field = %v, want 1", fields["offset"])
	}
	if fields["order_id"] != "o-1" {
		t.Errorf("order_id field = %v, want o-1", fields["order_id"])
	}
	if failures[1].ContextMap()["attempt"] != int64(2) {
		t.Errorf("second attempt field = %v, want 2", failures[1].ContextMap()["attempt"])
	}
	if got := testutil.ToFloat64(m.RedeliveriesTotal); got != 2 {
		t.Errorf("redeliveries = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RecordsFailedTotal); got != 2 {
		t.Errorf("records failed = %v, want 2", got)
	}
}

func TestRun_ManualPoisonRecordIsNeverSkippedWithoutDLQ(t *testing.T) {
	t.Parallel()

	c := brokertest.NewConsumer(
		brokertest.Rec(0, "bad", "{not json"),
		brokertest.Rec(1, "o-1", payload(t, "o-1")),
	)
	loop, err := New(c, &recordingHandler{}, Options{
		CommitMode:  config.CommitManual,
		Backoff:     time.Millisecond,
		MaxAttempts: 2,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := loop.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run err = %v, want deadline exceeded", err)
	}

	if commits := c.Commits(); len(commits) != 0 {
		t.Fatalf("commits = %v, want none", commits)
	}
	rewinds := 0
	for _, call := range c.Calls() {
		switch {
		case call == "poll:1":
			t.Fatal("offset 1 polled while offset 0 is still uncommitted")
		case call == "rewind:0":
			rewinds++
		}
	}
	if rewinds < 2 {
		t.Errorf("rewinds = %d, want at least 2", rewinds)
	}
}

func TestRun_ManualDeadLettersAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	c := brokertest.NewConsumer(
		brokertest.Rec(0, "bad", "{not json"),
		brokertest.Rec(1, "o-1", payload(t, "o-1")),
	)
	dlq := &fakeDLQ{}
	m := obs.NewMetrics("inventory", prometheus.NewRegistry())

	err := runUntilDrained(t, c, &recordingHandler{}, Options{
		CommitMode:  config.CommitManual,
		MaxAttempts: 3,
		DLQ:         dlq,
		Metrics:     m,
	}, zap.NewNop())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err = %v, want context.Canceled", err)
	}

	assertCalls(t, c.Calls(), []string{
		"poll:0", "rewind:0",
		"poll:0", "rewind:0",
		"poll:0", "commit:0",
		"poll:1", "commit:1",
		"poll:idle",
	})
	if len(dlq.published) != 1 || dlq.published[0] != 0 || dlq.attempts[0] != 3 {
		t.Errorf("dead-lettered = %v attempts %v, want [0] after 3", dlq.published, dlq.attempts)
	}
	if got := testutil.ToFloat64(m.DLQMessagesTotal); got != 1 {
		t.Errorf("dlq messages = %v, want 1", got)
	}
}

func TestRun_ManualDLQFailureKeepsRecordUncommitted(t *testing.T) {
	t.Parallel()

	c := brokertest.NewConsumer(brokertest.Rec(0, "bad", "{not json"))
	dlq := &fakeDLQ{err: errors.New("dlq topic unavailable")}
	core, logs := observer.New(zapcore.ErrorLevel)
	loop, err := New(c, &recordingHandler{}, Options{
		CommitMode:  config.CommitManual,
		Backoff:     time.Millisecond,
		MaxAttempts: 1,
		DLQ:         dlq,
	}, zap.New(core))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_ = loop.Run(ctx)

	if commits := c.Commits(); len(commits) != 0 {
		t.Fatalf("commits = %v, want none", commits)
	}
	if logs.FilterMessage("Dead-letter publish failed, record stays uncommitted").Len() == 0 {
		t.Error("expected dead-letter failure log")
	}
}

func TestRun_AutoModeNeverCommitsAndSkipsFailures(t *testing.T) {
	t.Parallel()

	c := brokertest.NewConsumer(
		brokertest.Rec(0, "bad", "{not json"),
		brokertest.Rec(1, "o-1", payload(t, "o-1")),
		brokertest.Rec(2, "o-2", payload(t, "o-2")),
	)
	h := &recordingHandler{failures: map[int64]int{2: 1}}
	core, logs := observer.New(zapcore.InfoLevel)

	err := runUntilDrained(t, c, h, Options{CommitMode: config.CommitAuto}, zap.New(core))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err = %v, want context.Canceled", err)
	}

	assertCalls(t, c.Calls(), []string{"poll:0", "poll:1", "poll:2", "poll:idle"})
	if handled := h.Handled(); len(handled) != 1 || handled[0] != 1 {
		t.Errorf("handled = %v, want [1]", handled)
	}
	if got := logs.FilterMessage("Record processing failed, skipping").Len(); got != 2 {
		t.Errorf("skip logs = %d, want 2", got)
	}
}

func TestRun_PollErrorClasses(t *testing.T) {
	t.Parallel()

	c := brokertest.NewConsumer(
		brokertest.Step{Err: broker.ErrEndOfPartition},
		brokertest.Step{Err: kafka.UnknownTopicOrPartition},
		brokertest.Step{Err: broker.ErrBrokerUnreachable},
		brokertest.Step{},
		brokertest.Rec(0, "o-0", payload(t, "o-0")),
	)
	core, logs := observer.New(zapcore.InfoLevel)
	m := obs.NewMetrics("inventory", prometheus.NewRegistry())

	err := runUntilDrained(t, c, &recordingHandler{}, Options{Metrics: m}, zap.New(core))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err = %v, want context.Canceled", err)
	}

	assertCalls(t, c.Calls(), []string{
		"poll:error", "poll:error", "poll:error", "poll:idle",
		"poll:0", "commit:0",
		"poll:idle",
	})
	if logs.FilterMessage("Topic not ready yet, waiting").Len() != 1 {
		t.Error("expected one bootstrap wait log")
	}
	if logs.FilterMessage("Broker not ready yet, waiting").Len() != 1 {
		t.Error("expected one transient wait log")
	}
	if got := testutil.ToFloat64(m.BrokerErrorsTotal.WithLabelValues("bootstrap")); got != 1 {
		t.Errorf("bootstrap errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.BrokerErrorsTotal.WithLabelValues("transient")); got != 1 {
		t.Errorf("transient errors = %v, want 1", got)
	}
}

func TestRun_FatalPollErrorStopsLoop(t *testing.T) {
	t.Parallel()

	fatal := errors.New("sasl authentication failed")
	c := brokertest.NewConsumer(
		brokertest.Step{Err: fatal},
		brokertest.Rec(0, "o-0", payload(t, "o-0")),
	)
	loop, err := New(c, &recordingHandler{}, Options{Backoff: time.Millisecond}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = loop.Run(context.Background())
	if !errors.Is(err, fatal) {
		t.Fatalf("Run err = %v, want wrapped %v", err, fatal)
	}
	assertCalls(t, c.Calls(), []string{"poll:error"})
}

func TestRun_FatalCommitErrorStopsLoop(t *testing.T) {
	t.Parallel()

	c := brokertest.NewConsumer(
		brokertest.Rec(0, "o-0", payload(t, "o-0")),
		brokertest.Rec(1, "o-1", payload(t, "o-1")),
	)
	c.CommitErr = kafka.GroupAuthorizationFailed
	loop, err := New(c, &recordingHandler{}, Options{Backoff: time.Millisecond}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = loop.Run(context.Background())
	if !errors.Is(err, kafka.GroupAuthorizationFailed) {
		t.Fatalf("Run err = %v, want wrapped GroupAuthorizationFailed", err)
	}
	assertCalls(t, c.Calls(), []string{"poll:0", "commit-failed:0"})
}

func TestRun_TransientCommitErrorContinues(t *testing.T) {
	t.Parallel()

	c := brokertest.NewConsumer(
		brokertest.Rec(0, "o-0", payload(t, "o-0")),
		brokertest.Rec(1, "o-1", payload(t, "o-1")),
	)
	c.CommitErr = kafka.NotCoordinatorForGroup

	err := runUntilDrained(t, c, &recordingHandler{}, Options{}, zap.NewNop())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err = %v, want context.Canceled", err)
	}
	assertCalls(t, c.Calls(), []string{
		"poll:0", "commit-failed:0",
		"poll:1", "commit-failed:1",
		"poll:idle",
	})
}

func TestRun_CommitAfterRebalanceContinues(t *testing.T) {
	t.Parallel()

	c := brokertest.NewConsumer(
		brokertest.Rec(0, "o-0", payload(t, "o-0")),
		brokertest.Rec(1, "o-1", payload(t, "o-1")),
	)
	c.CommitErr = fmt.Errorf("failed to commit offset 0 on partition 0: %w", kafka.IllegalGeneration)
	core, logs := observer.New(zapcore.WarnLevel)

	err := runUntilDrained(t, c, &recordingHandler{}, Options{}, zap.New(core))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err = %v, want context.Canceled", err)
	}
	assertCalls(t, c.Calls(), []string{
		"poll:0", "commit-failed:0",
		"poll:1", "commit-failed:1",
		"poll:idle",
	})
	if got := logs.FilterMessage("Commit failed, record may be redelivered").Len(); got != 2 {
		t.Errorf("commit warnings = %d, want 2", got)
	}
}

func TestRun_StopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	c := brokertest.NewConsumer(brokertest.Rec(0, "o-0", payload(t, "o-0")))
	loop, err := New(c, &recordingHandler{}, Options{}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := loop.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err = %v, want context.Canceled", err)
	}
	if calls := c.Calls(); len(calls) != 0 {
		t.Errorf("calls = %v, want none", calls)
	}
}

func TestRun_ShutdownDuringHandlerLeavesRecordUncommitted(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := brokertest.NewConsumer(
		brokertest.Rec(0, "o-0", payload(t, "o-0")),
		brokertest.Rec(1, "o-1", payload(t, "o-1")),
	)
	h := pipeline.HandlerFunc(func(ctx context.Context, rec broker.Record, ev *order.Event) error {
		cancel()
		return ctx.Err()
	})
	loop, err := New(c, h, Options{}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := loop.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run err = %v, want context.Canceled", err)
	}
	assertCalls(t, c.Calls(), []string{"poll:0"})
}

func TestClose_ClosesConsumer(t *testing.T) {
	t.Parallel()

	c := brokertest.NewConsumer()
	loop, err := New(c, &recordingHandler{}, Options{}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := loop.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !c.Closed() {
		t.Error("consumer not closed")
	}
}
