package exporter

import (
	"log/slog"

	"github.com/haileys/dprom/internal/metric"
	"github.com/prometheus/client_golang/prometheus"
)

const metricHelp = "Value exported over D-Bus by a dprom producer."

// collector implements prometheus.Collector over the live table. The set
// of metrics changes at runtime, so it describes nothing and is
// registered unchecked.
type collector struct {
	live *metric.Live
}

// newCollector creates a collector reading live on every scrape.
func newCollector(live *metric.Live) *collector {
	return &collector{live: live}
}

// Describe sends no descriptors.
func (c *collector) Describe(ch chan<- *prometheus.Desc) {}

// Collect sends one sample per live metric, sorted by name.
func (c *collector) Collect(ch chan<- prometheus.Metric) {
	seen := make(map[string]string)

	for _, s := range c.live.Snapshot() {
		name := exposedName(s.Name)
		if prev, dup := seen[name]; dup {
			slog.Warn("skipping metric with colliding exposition name",
				"name", s.Name, "exposed", name, "collides_with", prev)
			continue
		}
		seen[name] = s.Name

		valueType := prometheus.GaugeValue
		if s.Value.Type == metric.TypeCounter {
			valueType = prometheus.CounterValue
		}

		desc := prometheus.NewDesc(name, metricHelp, nil, nil)
		m, err := prometheus.NewConstMetric(desc, valueType, s.Value.Number)
		if err != nil {
			slog.Debug("skipping metric", "name", s.Name, "error", err)
			continue
		}

		ch <- m
	}
}

// exposedName maps a bus metric name to a valid exposition name. Bus names
// may start with a digit, exposition names may not, so those get a leading
// underscore.
func exposedName(name string) string {
	if name != "" && name[0] >= '0' && name[0] <= '9' {
		return "_" + name
	}
	return name
}
