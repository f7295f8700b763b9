// Package obs provides observability functionality including metrics and HTTP endpoints
package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
// Every method is safe to call on a nil *Metrics.
type Metrics struct {
	OrdersPublishedTotal  prometheus.Counter
	OrdersPublishFailed   *prometheus.CounterVec
	PublishDuration       prometheus.Histogram
	RecordsConsumedTotal  prometheus.Counter
	RecordsProcessedTotal prometheus.Counter
	RecordsFailedTotal    prometheus.Counter
	OffsetsCommittedTotal prometheus.Counter
	RedeliveriesTotal     prometheus.Counter
	BrokerErrorsTotal     *prometheus.CounterVec
	DLQMessagesTotal      prometheus.Counter
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics with reg.
// Pass prometheus.DefaultRegisterer in services and a fresh registry in tests.
func NewMetrics(serviceName string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"service": serviceName}

	return &Metrics{
		OrdersPublishedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name:        "orders_published_total",
			Help:        "Total number of order events confirmed by the broker",
			ConstLabels: labels,
		}),
		OrdersPublishFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "orders_publish_failed_total",
			Help:        "Total number of publish attempts that did not confirm delivery",
			ConstLabels: labels,
		}, []string{"reason"}),
		PublishDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "order_publish_duration_seconds",
			Help:        "Time spent producing and flushing one order event",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}),
		RecordsConsumedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name:        "records_consumed_total",
			Help:        "Total number of records received from the broker",
			ConstLabels: labels,
		}),
		RecordsProcessedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name:        "records_processed_total",
			Help:        "Total number of records successfully processed",
			ConstLabels: labels,
		}),
		RecordsFailedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name:        "records_failed_total",
			Help:        "Total number of record processing failures",
			ConstLabels: labels,
		}),
		OffsetsCommittedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name:        "offsets_committed_total",
			Help:        "Total number of explicit offset commits",
			ConstLabels: labels,
		}),
		RedeliveriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name:        "record_redeliveries_total",
			Help:        "Total number of records rewound for another processing attempt",
			ConstLabels: labels,
		}),
		BrokerErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "broker_errors_total",
			Help:        "Total number of broker poll errors by class",
			ConstLabels: labels,
		}, []string{"class"}),
		DLQMessagesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name:        "dlq_messages_total",
			Help:        "Total number of messages sent to the dead-letter queue",
			ConstLabels: labels,
		}),
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: labels,
		}, []string{"route", "method", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}, []string{"route", "method"}),
	}
}

// ObservePublish records one successful publish and its duration
func (m *Metrics) ObservePublish(d time.Duration) {
	if m == nil {
		return
	}
	m.OrdersPublishedTotal.Inc()
	m.PublishDuration.Observe(d.Seconds())
}

// IncrementPublishFailed increments the failed publish counter for reason
func (m *Metrics) IncrementPublishFailed(reason string) {
	if m == nil {
		return
	}
	m.OrdersPublishFailed.WithLabelValues(reason).Inc()
}

// IncrementRecordsConsumed increments the consumed records counter by 1
func (m *Metrics) IncrementRecordsConsumed() {
	if m == nil {
		return
	}
	m.RecordsConsumedTotal.Inc()
}

// IncrementRecordsProcessed increments the processed records counter by 1
func (m *Metrics) IncrementRecordsProcessed() {
	if m == nil {
		return
	}
	m.RecordsProcessedTotal.Inc()
}

// IncrementRecordsFailed increments the failed records counter by 1
func (m *Metrics) IncrementRecordsFailed() {
	if m == nil {
		return
	}
	m.RecordsFailedTotal.Inc()
}

// IncrementOffsetsCommitted increments the committed offsets counter by 1
func (m *Metrics) IncrementOffsetsCommitted() {
	if m == nil {
		return
	}
	m.OffsetsCommittedTotal.Inc()
}

// IncrementRedeliveries increments the redeliveries counter by 1
func (m *Metrics) IncrementRedeliveries() {
	if m == nil {
		return
	}
	m.RedeliveriesTotal.Inc()
}

// IncrementBrokerErrors increments the broker error counter for class
func (m *Metrics) IncrementBrokerErrors(class string) {
	if m == nil {
		return
	}
	m.BrokerErrorsTotal.WithLabelValues(class).Inc()
}

// IncrementDLQMessages increments the DLQ messages counter by 1
func (m *Metrics) IncrementDLQMessages() {
	if m == nil {
		return
	}
	m.DLQMessagesTotal.Inc()
}

// ObserveHTTPRequest records one served HTTP request
func (m *Metrics) ObserveHTTPRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, method, statusLabel(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}
