// Package observe provides application-wide observability primitives for the
// elefante memory engine: OpenTelemetry metrics, distributed tracing,
// structured logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider]; no /metrics HTTP endpoint
// is mounted for it by this package or the MCP transport. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all elefante metrics.
const meterName = "github.com/elefante-mem/elefante"

// Metrics holds all OpenTelemetry metric instruments for the engine. All
// fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// SearchDuration tracks end-to-end hybrid retrieval latency (§4.1).
	SearchDuration metric.Float64Histogram

	// IngestDuration tracks end-to-end ingestion pipeline latency (§4.2).
	IngestDuration metric.Float64Histogram

	// LockWaitDuration tracks time spent waiting to acquire the write lock (§4.5).
	LockWaitDuration metric.Float64Histogram

	// LockHoldDuration tracks time the write lock was held for one operation.
	LockHoldDuration metric.Float64Histogram

	// --- Counters ---

	// SearchesTotal counts search calls. Use with attributes:
	//   attribute.String("mode", ...), attribute.Bool("partial", ...)
	SearchesTotal metric.Int64Counter

	// MemoriesAdded counts add_memory calls that created a new record.
	MemoriesAdded metric.Int64Counter

	// MemoriesReinforced counts add_memory calls that reinforced an existing
	// record instead of creating a new one.
	MemoriesReinforced metric.Int64Counter

	// LockStealsTotal counts successful write-lock steals from a stale or
	// dead holder.
	LockStealsTotal metric.Int64Counter

	// BackendErrorsTotal counts backend failures. Use with attributes:
	//   attribute.String("backend", "vector"|"graph"|"embedder"), attribute.String("kind", ...)
	BackendErrorsTotal metric.Int64Counter

	// --- Gauges ---

	// ActiveLockHolders is 0 or 1: whether this process currently holds the
	// write lock.
	ActiveLockHolders metric.Int64UpDownCounter

	// --- HTTP middleware (streamable-http MCP transport) ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// retrieval/ingestion latencies, which are expected sub-second with an
// occasional multi-second tail under lock contention.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.SearchDuration, err = m.Float64Histogram("elefante.search.duration",
		metric.WithDescription("Latency of hybrid retrieval search calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.IngestDuration, err = m.Float64Histogram("elefante.ingest.duration",
		metric.WithDescription("Latency of add_memory ingestion pipeline calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LockWaitDuration, err = m.Float64Histogram("elefante.lock.wait_duration",
		metric.WithDescription("Time spent waiting to acquire the write lock."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LockHoldDuration, err = m.Float64Histogram("elefante.lock.hold_duration",
		metric.WithDescription("Time the write lock was held for one operation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.SearchesTotal, err = m.Int64Counter("elefante.searches_total",
		metric.WithDescription("Total search calls by mode and partial-result status."),
	); err != nil {
		return nil, err
	}
	if met.MemoriesAdded, err = m.Int64Counter("elefante.memories_added_total",
		metric.WithDescription("Total add_memory calls that created a new record."),
	); err != nil {
		return nil, err
	}
	if met.MemoriesReinforced, err = m.Int64Counter("elefante.memories_reinforced_total",
		metric.WithDescription("Total add_memory calls that reinforced an existing record."),
	); err != nil {
		return nil, err
	}
	if met.LockStealsTotal, err = m.Int64Counter("elefante.lock_steals_total",
		metric.WithDescription("Total successful write-lock steals from a stale or dead holder."),
	); err != nil {
		return nil, err
	}
	if met.BackendErrorsTotal, err = m.Int64Counter("elefante.backend_errors_total",
		metric.WithDescription("Total backend failures by backend and error kind."),
	); err != nil {
		return nil, err
	}

	if met.ActiveLockHolders, err = m.Int64UpDownCounter("elefante.active_lock_holders",
		metric.WithDescription("Whether this process currently holds the write lock (0 or 1)."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("elefante.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSearch is a convenience method that records a search counter
// increment with the standard attribute set.
func (m *Metrics) RecordSearch(ctx context.Context, mode string, partial bool) {
	m.SearchesTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.Bool("partial", partial),
		),
	)
}

// RecordBackendError is a convenience method that records a backend error
// counter increment.
func (m *Metrics) RecordBackendError(ctx context.Context, backend, kind string) {
	m.BackendErrorsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("kind", kind),
		),
	)
}
