package exporter

import (
	"log/slog"

	"github.com/haileys/dprom/internal/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// InternalGauge is a self-monitoring value sampled on every scrape.
type InternalGauge struct {
	Name  string
	Help  string
	Value func() float64
}

// createPrometheusRegistry creates a registry serving the live table and,
// when given, the internal gauges.
func createPrometheusRegistry(live *metric.Live, internal []InternalGauge) *prometheus.Registry {
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(newCollector(live))

	for _, g := range internal {
		promRegistry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: g.Name,
			Help: g.Help,
		}, g.Value))
		slog.Debug("registered internal metric", "name", g.Name)
	}

	return promRegistry
}
