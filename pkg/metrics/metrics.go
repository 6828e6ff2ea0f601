// Package metrics holds the relay's Prometheus collectors, registered on the default registry.
package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "contact_relay"

// DurationBuckets cover store calls in milliseconds up to provider calls near the 15s timeout
var DurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13, 21}

// HTTP server metrics use the OpenTelemetry semantic names
var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_server_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: DurationBuckets,
		},
		[]string{"http_request_method", "http_route", "http_response_status_code"},
	)

	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_server_request_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"http_request_method", "http_route", "http_response_status_code"},
	)

	// The route is unknown until routing finishes, so in-flight requests carry the method only
	ActiveRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_server_active_requests",
			Help: "Number of in-flight HTTP requests",
		},
		[]string{"http_request_method"},
	)
)

// Rate limit store metrics, labelled by backend (postgres, redis, memory)
var (
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_client_operation_duration_seconds",
			Help:    "Rate limit store operation duration in seconds",
			Buckets: DurationBuckets,
		},
		[]string{"store", "operation", "status"},
	)

	StoreOperationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_client_operation_total",
			Help: "Total number of rate limit store operations",
		},
		[]string{"store", "operation", "status"},
	)

	PurgedRecords = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_records_purged_total",
			Help:      "Expired rate limit records deleted",
		},
	)
)

// Relay and provider metrics
var (
	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Email provider request duration in seconds",
			Buckets:   DurationBuckets,
		},
		[]string{"provider", "status"},
	)

	ProviderRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_request_total",
			Help:      "Email provider requests",
		},
		[]string{"provider", "status"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"breaker"},
	)

	// status: success, invalid, rate_limited, not_configured, provider_error, error
	ContactSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Contact submissions handled by the relay",
		},
		[]string{"status"},
	)
)

var (
	GoRoutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "process_runtime_go_goroutines",
			Help: "Number of goroutines",
		},
	)

	HeapAlloc = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "process_runtime_go_mem_heap_alloc_bytes",
			Help: "Heap allocated bytes",
		},
	)
)

// RecordInfrastructureMetrics samples runtime gauges every interval until ctx is done
func RecordInfrastructureMetrics(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		var m runtime.MemStats
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runtime.ReadMemStats(&m)
				GoRoutines.Set(float64(runtime.NumGoroutine()))
				HeapAlloc.Set(float64(m.HeapAlloc))
			}
		}
	}()
}

// MeasureDuration returns the seconds elapsed since start
func MeasureDuration(start time.Time) float64 {
	return time.Since(start).Seconds()
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveStore records the outcome of one rate limit store call
func ObserveStore(store, operation string, start time.Time, err error) {
	status := statusOf(err)
	StoreOperationDuration.WithLabelValues(store, operation, status).Observe(MeasureDuration(start))
	StoreOperationTotal.WithLabelValues(store, operation, status).Inc()
}

// ObserveProvider records one provider call and returns its duration in seconds
func ObserveProvider(provider, status string, start time.Time) float64 {
	elapsed := MeasureDuration(start)
	ProviderRequestDuration.WithLabelValues(provider, status).Observe(elapsed)
	ProviderRequestTotal.WithLabelValues(provider, status).Inc()
	return elapsed
}
