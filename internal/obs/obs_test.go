package obs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

func TestMetrics_NilSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.ObservePublish(time.Millisecond)
	m.IncrementPublishFailed("broker_unavailable")
	m.IncrementRecordsConsumed()
	m.IncrementRecordsProcessed()
	m.IncrementRecordsFailed()
	m.IncrementOffsetsCommitted()
	m.IncrementRedeliveries()
	m.IncrementBrokerErrors("transient")
	m.IncrementDLQMessages()
	m.ObserveHTTPRequest("/orders", http.MethodPost, http.StatusOK, time.Millisecond)
}

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()

	m := NewMetrics("inventory", prometheus.NewRegistry())
	m.IncrementRecordsConsumed()
	m.IncrementRecordsConsumed()
	m.IncrementOffsetsCommitted()
	m.IncrementBrokerErrors("bootstrap")

	if got := testutil.ToFloat64(m.RecordsConsumedTotal); got != 2 {
		t.Errorf("expected 2 consumed records, got %v", got)
	}
	if got := testutil.ToFloat64(m.OffsetsCommittedTotal); got != 1 {
		t.Errorf("expected 1 commit, got %v", got)
	}
	if got := testutil.ToFloat64(m.BrokerErrorsTotal.WithLabelValues("bootstrap")); got != 1 {
		t.Errorf("expected 1 bootstrap error, got %v", got)
	}
}

func TestHandler(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics("analytics", reg)
	m.IncrementRecordsProcessed()

	srv := httptest.NewServer(NewHandler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != `{"status":"ok"}` {
		t.Fatalf("unexpected health response %d %s", resp.StatusCode, body)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `records_processed_total{service="analytics"} 1`) {
		t.Fatalf("expected processed counter in metrics output, got:\n%s", body)
	}
}

func TestStartServer_InvalidPort(t *testing.T) {
	t.Parallel()

	err := StartServer(context.Background(), "not-a-port", prometheus.NewRegistry(), zap.NewNop())
	if err == nil {
		t.Fatal("expected error for invalid port")
	}
}
