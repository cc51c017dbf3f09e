package otel

import (
	"context"
	"errors"
	"testing"

	goCred "github.com/MrEthical07/goCred"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	counters map[goCred.MetricID]uint64
	dropped  uint64
}

func (s *fakeSource) MetricsSnapshot() goCred.MetricsSnapshot {
	return goCred.MetricsSnapshot{Counters: s.counters}
}

func (s *fakeSource) AuditDropped() uint64 { return s.dropped }

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	values := make(map[string]int64)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s is not an int64 sum", m.Name)
			}
			for _, dp := range sum.DataPoints {
				values[m.Name] = dp.Value
			}
		}
	}
	return values
}

func TestObservableCountersFollowSnapshots(t *testing.T) {
	source := &fakeSource{
		counters: map[goCred.MetricID]uint64{
			goCred.MetricTokenIssued:   4,
			goCred.MetricStateVerified: 9,
		},
		dropped: 1,
	}

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	exporter, err := NewOTelExporterFromSource(provider.Meter("gocred-test"), source)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() { _ = exporter.Close() }()

	values := collect(t, reader)
	if values["gocred_token_issued_total"] != 4 {
		t.Fatalf("expected issued=4, got %d", values["gocred_token_issued_total"])
	}
	if values["gocred_oauth_state_verified_total"] != 9 {
		t.Fatalf("expected verified=9, got %d", values["gocred_oauth_state_verified_total"])
	}
	if values["gocred_audit_dropped_total"] != 1 {
		t.Fatalf("expected dropped=1, got %d", values["gocred_audit_dropped_total"])
	}

	// Later collections observe the moved counters.
	source.counters[goCred.MetricTokenIssued] = 10
	values = collect(t, reader)
	if values["gocred_token_issued_total"] != 10 {
		t.Fatalf("expected issued=10 after update, got %d", values["gocred_token_issued_total"])
	}
}

func TestConstructorRejectsNilInputs(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	if _, err := NewOTelExporterFromSource(nil, &fakeSource{}); !errors.Is(err, ErrNilMeter) {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
	if _, err := NewOTelExporterFromSource(provider.Meter("t"), nil); !errors.Is(err, ErrNilSource) {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	exporter, err := NewOTelExporterFromSource(provider.Meter("t"), &fakeSource{})
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	if err := exporter.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	_ = exporter.Close()

	var nilExporter *OTelExporter
	if err := nilExporter.Close(); err != nil {
		t.Fatalf("nil Close must be a no-op, got %v", err)
	}
}
