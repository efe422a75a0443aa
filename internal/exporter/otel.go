package exporter

import (
	"context"
	"log/slog"
	"time"

	"github.com/haileys/dprom/internal/config"
	"github.com/haileys/dprom/internal/metric"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// OTELExporter pushes the live table to an OTEL collector.
type OTELExporter struct {
	config        *config.OTELExportConfig
	live          *metric.Live
	meterProvider *sdkmetric.MeterProvider
	meter         otelmetric.Meter

	// owned by the Start goroutine
	instruments map[instrumentKey]struct{}
}

// NewOTELExporter creates a new OTEL exporter.
func NewOTELExporter(ctx context.Context, cfg *config.OTELExportConfig, live *metric.Live) (*OTELExporter, error) {
	meterProvider, err := createMeterProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return newOTELExporter(cfg, live, meterProvider), nil
}

func newOTELExporter(cfg *config.OTELExportConfig, live *metric.Live, meterProvider *sdkmetric.MeterProvider) *OTELExporter {
	return &OTELExporter{
		config:        cfg,
		live:          live,
		meterProvider: meterProvider,
		meter:         meterProvider.Meter("dprom"),
		instruments:   make(map[instrumentKey]struct{}),
	}
}

// Start picks up new metric names every read interval until ctx is
// cancelled. The periodic reader pushes on its own schedule.
func (e *OTELExporter) Start(ctx context.Context) error {
	slog.Info("starting otel exporter",
		"endpoint", e.config.GetEndpoint(),
		"transport", e.config.Transport,
		"read_interval", e.config.Interval.Read,
		"push_interval", e.config.Interval.Push,
	)

	ticker := time.NewTicker(e.config.Interval.Read)
	defer ticker.Stop()

	e.syncInstruments()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.syncInstruments()
		}
	}
}

// Stop flushes pending data and shuts the meter provider down.
func (e *OTELExporter) Stop() error {
	slog.Info("shutting down otel exporter")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return e.meterProvider.Shutdown(ctx)
}
