// Package app wires the exporter process together: one discovery engine
// per bus feeding a shared registry, the live table and the exporters.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/haileys/dprom/internal/bus"
	"github.com/haileys/dprom/internal/config"
	"github.com/haileys/dprom/internal/discovery"
	"github.com/haileys/dprom/internal/exporter"
	"github.com/haileys/dprom/internal/metric"
	"github.com/haileys/dprom/internal/monitor"
	"github.com/haileys/dprom/internal/version"
	"golang.org/x/sync/errgroup"
)

// App holds initialized application components.
type App struct {
	Config             *config.Config
	Registry           *metric.Registry
	Live               *metric.Live
	Buses              []*Bus
	PrometheusExporter *exporter.PrometheusExporter
	OTELExporter       *exporter.OTELExporter

	logger *slog.Logger
}

// Bus is one bus connection and the engine discovering metrics on it.
type Bus struct {
	Kind   bus.Kind
	Conn   *bus.DBus
	Engine *discovery.Engine
}

// New connects to the configured buses and builds the exporters.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{
		Config:   cfg,
		Registry: metric.NewRegistry(),
		Live:     metric.NewLive(),
		logger:   logger,
	}

	for _, kind := range cfg.DBus.Buses() {
		conn, err := bus.Connect(kind)
		if err != nil {
			a.Close()
			return nil, err
		}

		a.Buses = append(a.Buses, &Bus{
			Kind:   kind,
			Conn:   conn,
			Engine: discovery.New(conn, a.Registry, logger.With("dbus", string(kind))),
		})
	}

	promExporter, err := exporter.NewPrometheusExporter(cfg.HTTP, a.Live, exporter.PrometheusOptions{
		Internal: cfg.Settings.InternalMetrics.Enabled,
		Gauges:   a.internalGauges(),
		Version:  version.String(),
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	a.PrometheusExporter = promExporter

	if cfg.OTELEnabled() {
		otelExporter, err := exporter.NewOTELExporter(ctx, cfg.OTEL, a.Live)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create OTEL exporter: %w", err)
		}
		a.OTELExporter = otelExporter
	}

	return a, nil
}

// Run runs every subsystem until ctx is cancelled, which returns nil, or
// until the first subsystem ends on its own, which is an error.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	run := func(name string, fn func(ctx context.Context) error) {
		g.Go(func() error {
			err := fn(gctx)
			if gctx.Err() != nil {
				return nil
			}
			if err == nil {
				err = errors.New("stopped unexpectedly")
			}
			return fmt.Errorf("%s: %w", name, err)
		})
	}

	run("live metrics", func(ctx context.Context) error {
		return a.Live.Run(ctx, a.Registry)
	})

	for _, b := range a.Buses {
		run(string(b.Kind)+" bus discovery", b.Engine.Run)
	}

	run("prometheus exporter", a.PrometheusExporter.Start)

	if a.OTELExporter != nil {
		run("otel exporter", a.OTELExporter.Start)
	}

	if interval := a.Config.Settings.Monitor.Interval; interval > 0 {
		mon := monitor.New(interval, a.logger, a.statsSources()...)
		mon.Run(gctx)
		defer mon.Wait()
	}

	return g.Wait()
}

// Close releases the bus connections and flushes the OTEL exporter.
func (a *App) Close() {
	if a.OTELExporter != nil {
		if err := a.OTELExporter.Stop(); err != nil {
			a.logger.Warn("failed to stop otel exporter", "error", err)
		}
	}

	for _, b := range a.Buses {
		if b.Conn == nil {
			continue
		}
		if err := b.Conn.Close(); err != nil {
			a.logger.Debug("failed to close bus connection", "dbus", b.Kind, "error", err)
		}
	}
}

// Peers returns the number of tracked peers across all buses.
func (a *App) Peers() int {
	n := 0
	for _, b := range a.Buses {
		n += b.Engine.Peers()
	}
	return n
}

// Watchers returns the number of running metric watchers across all buses.
func (a *App) Watchers() int {
	n := 0
	for _, b := range a.Buses {
		n += b.Engine.Watchers()
	}
	return n
}

func (a *App) internalGauges() []exporter.InternalGauge {
	return []exporter.InternalGauge{
		{
			Name:  "dprom_peers",
			Help:  "Number of bus peers tracked by discovery.",
			Value: func() float64 { return float64(a.Peers()) },
		},
		{
			Name:  "dprom_metric_watchers",
			Help:  "Number of running metric watchers.",
			Value: func() float64 { return float64(a.Watchers()) },
		},
		{
			Name:  "dprom_live_metrics",
			Help:  "Number of metrics currently exported.",
			Value: func() float64 { return float64(a.Live.Len()) },
		},
	}
}

func (a *App) statsSources() []monitor.StatsSource {
	sources := []monitor.StatsSource{a.Live}
	for _, b := range a.Buses {
		sources = append(sources, busStats{b})
	}
	return sources
}

// busStats prefixes an engine's counts with its bus kind.
type busStats struct {
	bus *Bus
}

func (s busStats) Stats() []slog.Attr {
	return []slog.Attr{{
		Key:   string(s.bus.Kind),
		Value: slog.GroupValue(s.bus.Engine.Stats()...),
	}}
}
