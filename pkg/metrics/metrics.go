// Package metrics records per-run pipeline metrics and exposes the
// Prometheus collectors of the data-flux pipeline. Collectors are registered
// via promauto in the package that owns them (client, cache, metrics).
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// JobName is the Pushgateway job a run's metrics are pushed under.
const JobName = "dataflux"

// Registry is the Prometheus registry all data-flux collectors are
// registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects Registry for pushing.
var Gatherer prometheus.Gatherer = prometheus.DefaultGatherer

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dataflux_requests_total",
		Help: "Batch page requests by collection and outcome",
	}, []string{"collection", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dataflux_request_duration_seconds",
		Help:    "Batch page request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"collection"})

	recordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dataflux_records_total",
		Help: "Validated records by collection and outcome",
	}, []string{"collection", "outcome"})

	lastRunRequestsPerSecond = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dataflux_last_run_requests_per_second",
		Help: "Request throughput of the last completed batch",
	}, []string{"collection"})

	lastRunRecordsPerSecond = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dataflux_last_run_records_per_second",
		Help: "Accepted record throughput of the last completed batch",
	}, []string{"collection"})
)

// Push sends the current values of every collector to a Pushgateway, grouped
// by collection. A batch run exits before any scraper could reach it.
func Push(ctx context.Context, gatewayURL, collection string) error {
	err := push.New(gatewayURL, JobName).
		Gatherer(Gatherer).
		Grouping("collection", collection).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

// Metrics Documentation
//
// Pipeline Metrics (pkg/metrics):
//   - dataflux_requests_total{collection, status} (Counter): Batch requests, status "success", "cached" or "failure"
//   - dataflux_request_duration_seconds{collection} (Histogram): Batch request duration
//   - dataflux_records_total{collection, outcome} (Counter): Records "accepted" or "rejected"
//   - dataflux_last_run_requests_per_second{collection} (Gauge): Last batch request rate
//   - dataflux_last_run_records_per_second{collection} (Gauge): Last batch accepted record rate
//
// Source Metrics (pkg/client):
//   - dataflux_source_requests_total{endpoint, status} (Counter): HTTP requests by status, "cached" for cache hits
//   - dataflux_source_request_duration_seconds{endpoint} (Histogram): HTTP round-trip duration
//   - dataflux_source_errors_total{class} (Counter): Errors by class (client, server, network, decode)
//
// Cache Metrics (pkg/cache):
//   - dataflux_cache_hits_total (Counter): Page cache hits
//   - dataflux_cache_misses_total (Counter): Page cache misses
//   - dataflux_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Page failure ratio of the last runs
//   sum by (collection) (dataflux_requests_total{status="failure"}) /
//   sum by (collection) (dataflux_requests_total)
//
//   # Rejection ratio
//   sum by (collection) (dataflux_records_total{outcome="rejected"}) /
//   sum by (collection) (dataflux_records_total)
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(dataflux_request_duration_seconds_bucket[5m]))
