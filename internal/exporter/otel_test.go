package exporter

import (
	"context"
	"testing"

	"github.com/haileys/dprom/internal/config"
	"github.com/haileys/dprom/internal/metric"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestOTELExporter(t *testing.T, live *metric.Live) (*OTELExporter, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	cfg := &config.OTELExportConfig{Enabled: true}
	require.NoError(t, cfg.Validate())

	return newOTELExporter(cfg, live, provider), reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func gaugePoints(t *testing.T, data metricdata.Aggregation) []float64 {
	t.Helper()

	g, ok := data.(metricdata.Gauge[float64])
	require.True(t, ok, "not a float64 gauge: %T", data)

	var out []float64
	for _, p := range g.DataPoints {
		out = append(out, p.Value)
	}
	return out
}

func TestOTELInstrumentsFollowLiveTable(t *testing.T) {
	live := liveWith(map[string]metric.Value{
		"cpu_temp": metric.Gauge(41.5),
		"requests": metric.Counter(7),
	})
	e, reader := newTestOTELExporter(t, live)

	e.syncInstruments()
	got := collect(t, reader)

	require.Equal(t, []float64{41.5}, gaugePoints(t, got["cpu_temp"]))

	sum, ok := got["requests"].(metricdata.Sum[float64])
	require.True(t, ok, "not a float64 sum: %T", got["requests"])
	require.True(t, sum.IsMonotonic)
	require.Len(t, sum.DataPoints, 1)
	require.Equal(t, 7.0, sum.DataPoints[0].Value)

	// new value, same instrument
	v := metric.Gauge(43)
	live.Apply(metric.Record{Name: "cpu_temp", Token: 10, Value: &v})
	e.syncInstruments()
	require.Len(t, e.instruments, 2)
	require.Equal(t, []float64{43}, gaugePoints(t, collect(t, reader)["cpu_temp"]))

	// retracted names stop reporting
	live.Apply(metric.Record{Name: "cpu_temp", Token: 10})
	if data, ok := collect(t, reader)["cpu_temp"]; ok {
		require.Empty(t, gaugePoints(t, data))
	}
}

func TestOTELNewNamesPickedUp(t *testing.T) {
	live := liveWith(nil)
	e, reader := newTestOTELExporter(t, live)

	e.syncInstruments()
	require.Empty(t, e.instruments)

	v := metric.Gauge(1)
	live.Apply(metric.Record{Name: "late", Token: 1, Value: &v})
	e.syncInstruments()

	require.Equal(t, []float64{1}, gaugePoints(t, collect(t, reader)["late"]))
}

func TestOTELStartStops(t *testing.T) {
	e, _ := newTestOTELExporter(t, liveWith(map[string]metric.Value{"x": metric.Gauge(1)}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, e.Start(ctx))
	require.Len(t, e.instruments, 1)
}
