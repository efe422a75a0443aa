package exporter

import (
	"context"
	"log/slog"

	"github.com/haileys/dprom/internal/metric"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// instrumentKey identifies an observable instrument. A name that changes
// kind gets a second instrument; only the one matching the live value
// reports.
type instrumentKey struct {
	name string
	typ  metric.Type
}

// syncInstruments creates an observable instrument for every live metric
// that has none yet. Retracted metrics keep their instrument but stop
// reporting.
func (e *OTELExporter) syncInstruments() {
	for _, s := range e.live.Snapshot() {
		key := instrumentKey{name: s.Name, typ: s.Value.Type}
		if _, ok := e.instruments[key]; ok {
			continue
		}

		if err := e.registerInstrument(key); err != nil {
			slog.Warn("failed to create otel instrument", "name", key.name, "type", key.typ, "error", err)
		} else {
			slog.Debug("registered otel metric", "name", key.name, "type", key.typ)
		}
		// not retried: the name and kind cannot change for this key
		e.instruments[key] = struct{}{}
	}
}

func (e *OTELExporter) registerInstrument(key instrumentKey) error {
	observe := func(_ context.Context, o otelmetric.Float64Observer) error {
		if v, ok := e.live.Get(key.name); ok && v.Type == key.typ {
			o.Observe(v.Number)
		}
		return nil
	}

	switch key.typ {
	case metric.TypeCounter:
		_, err := e.meter.Float64ObservableCounter(
			key.name,
			otelmetric.WithDescription(metricHelp),
			otelmetric.WithFloat64Callback(observe),
		)
		return err
	default:
		_, err := e.meter.Float64ObservableGauge(
			key.name,
			otelmetric.WithDescription(metricHelp),
			otelmetric.WithFloat64Callback(observe),
		)
		return err
	}
}
