package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramsRegistered(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.SearchDuration.Record(ctx, 0.05)
	m.IngestDuration.Record(ctx, 0.2)
	m.LockWaitDuration.Record(ctx, 0.01)
	m.LockHoldDuration.Record(ctx, 0.03)

	rm := collect(t, reader)

	names := []string{
		"elefante.search.duration",
		"elefante.ingest.duration",
		"elefante.lock.wait_duration",
		"elefante.lock.hold_duration",
	}
	for _, n := range names {
		if findMetric(rm, n) == nil {
			t.Errorf("metric %q not found", n)
		}
	}
}

func TestSearchesCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSearch(ctx, "hybrid", false)
	m.RecordSearch(ctx, "hybrid", true)
	m.RecordSearch(ctx, "semantic", false)

	rm := collect(t, reader)
	mt := findMetric(rm, "elefante.searches_total")
	if mt == nil {
		t.Fatal("elefante.searches_total not found")
	}
	sum, ok := mt.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected data type %T", mt.Data)
	}
	if len(sum.DataPoints) != 3 {
		t.Errorf("got %d distinct attribute sets, want 3", len(sum.DataPoints))
	}
}

func TestMemoriesAddedAndReinforcedCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.MemoriesAdded.Add(ctx, 1)
	m.MemoriesAdded.Add(ctx, 1)
	m.MemoriesReinforced.Add(ctx, 1)

	rm := collect(t, reader)
	added := findMetric(rm, "elefante.memories_added_total")
	reinforced := findMetric(rm, "elefante.memories_reinforced_total")
	if added == nil || reinforced == nil {
		t.Fatal("expected both counters to be present")
	}
	addedSum := added.Data.(metricdata.Sum[int64])
	if addedSum.DataPoints[0].Value != 2 {
		t.Errorf("memories_added_total = %d, want 2", addedSum.DataPoints[0].Value)
	}
	reinforcedSum := reinforced.Data.(metricdata.Sum[int64])
	if reinforcedSum.DataPoints[0].Value != 1 {
		t.Errorf("memories_reinforced_total = %d, want 1", reinforcedSum.DataPoints[0].Value)
	}
}

func TestLockStealsCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.LockStealsTotal.Add(ctx, 1)

	rm := collect(t, reader)
	mt := findMetric(rm, "elefante.lock_steals_total")
	if mt == nil {
		t.Fatal("elefante.lock_steals_total not found")
	}
}

func TestBackendErrorsCounter(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordBackendError(ctx, "vector", "backend_unavailable")
	m.RecordBackendError(ctx, "graph", "backend_write_failed")

	rm := collect(t, reader)
	mt := findMetric(rm, "elefante.backend_errors_total")
	if mt == nil {
		t.Fatal("elefante.backend_errors_total not found")
	}
	sum := mt.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) != 2 {
		t.Errorf("got %d distinct attribute sets, want 2", len(sum.DataPoints))
	}
}

func TestActiveLockHoldersGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveLockHolders.Add(ctx, 1)

	rm := collect(t, reader)
	mt := findMetric(rm, "elefante.active_lock_holders")
	if mt == nil {
		t.Fatal("elefante.active_lock_holders not found")
	}
	sum := mt.Data.(metricdata.Sum[int64])
	if sum.DataPoints[0].Value != 1 {
		t.Errorf("active_lock_holders = %d, want 1", sum.DataPoints[0].Value)
	}

	m.ActiveLockHolders.Add(ctx, -1)
	rm = collect(t, reader)
	mt = findMetric(rm, "elefante.active_lock_holders")
	sum = mt.Data.(metricdata.Sum[int64])
	if sum.DataPoints[0].Value != 0 {
		t.Errorf("active_lock_holders = %d, want 0 after release", sum.DataPoints[0].Value)
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.01, metric.WithAttributes(
		attribute.String("method", "POST"),
		attribute.String("path", "/mcp"),
	))

	rm := collect(t, reader)
	if findMetric(rm, "elefante.http.request.duration") == nil {
		t.Fatal("elefante.http.request.duration not found")
	}
}

func TestAttrHelper(t *testing.T) {
	kv := Attr("backend", "vector")
	if kv.Key != "backend" || kv.Value.AsString() != "vector" {
		t.Errorf("Attr() = %+v", kv)
	}
}

func TestDefaultMetrics_SingletonAndPanicFree(t *testing.T) {
	m1 := DefaultMetrics()
	m2 := DefaultMetrics()
	if m1 != m2 {
		t.Error("DefaultMetrics should return the same pointer across calls")
	}
}
