// Package producer publishes gauges read from files as dprom metric
// objects on a bus.
package producer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
	"github.com/haileys/dprom/internal/bus"
	"github.com/haileys/dprom/internal/config"
	"github.com/haileys/dprom/internal/logging"
)

const introspectableInterface = "org.freedesktop.DBus.Introspectable"

// Server serves the dprom root object and one gauge object per
// configured gauge.
type Server struct {
	logger *slog.Logger
	gauges map[string]*prop.Properties
}

var _ Sink = (*Server)(nil)

// Dial connects to the first bus of mode that accepts a connection.
func Dial(ctx context.Context, mode config.BusMode, logger *slog.Logger) (*dbus.Conn, bus.Kind, error) {
	var errs []error

	for _, kind := range mode.Kinds() {
		logging.Trace(ctx, logger, "trying bus", "dbus", kind)

		conn, err := bus.Dial(kind)
		if err != nil {
			logging.Trace(ctx, logger, "error connecting to bus", "dbus", kind, "error", err)
			errs = append(errs, err)
			continue
		}

		logger.Info("connected to bus", "dbus", kind)
		return conn, kind, nil
	}

	return nil, "", errors.Join(errs...)
}

// Serve exports the root object and the gauge objects on conn. Gauge
// values start at 0 until the first sample arrives.
func Serve(conn *dbus.Conn, gauges []config.Gauge, logger *slog.Logger) (*Server, error) {
	s := &Server{
		logger: logger,
		gauges: make(map[string]*prop.Properties, len(gauges)),
	}

	paths := make([]dbus.ObjectPath, 0, len(gauges))
	for _, g := range gauges {
		path, err := bus.MetricPath(g.Name)
		if err != nil {
			return nil, fmt.Errorf("gauge %q: %w", g.Name, err)
		}

		props, err := exportObject(conn, path, bus.GaugeInterface, map[string]*prop.Prop{
			bus.PropName:  {Value: g.Name, Emit: prop.EmitConst},
			bus.PropValue: {Value: 0.0, Emit: prop.EmitTrue},
		})
		if err != nil {
			return nil, fmt.Errorf("gauge %q: %w", g.Name, err)
		}

		s.gauges[g.Name] = props
		paths = append(paths, path)
	}

	if len(paths) == 0 {
		logger.Warn("no gauges configured")
	}

	if _, err := exportObject(conn, bus.RootPath, bus.DPromInterface, map[string]*prop.Prop{
		bus.PropMetrics: {Value: paths, Emit: prop.EmitConst},
	}); err != nil {
		return nil, err
	}

	logger.Debug("serving objects", "root", bus.RootPath, "gauges", len(paths))
	return s, nil
}

// SetGauge updates a gauge's value and emits PropertiesChanged.
func (s *Server) SetGauge(name string, value float64) {
	props, ok := s.gauges[name]
	if !ok {
		s.logger.Warn("unknown gauge", "gauge", name)
		return
	}

	// SetMust panics when the change signal cannot be sent
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("failed to publish gauge", "gauge", name, "error", r)
		}
	}()
	props.SetMust(bus.GaugeInterface, bus.PropValue, value)
}

// exportObject exports the properties of iface at path along with
// introspection data.
func exportObject(conn *dbus.Conn, path dbus.ObjectPath, iface string, props map[string]*prop.Prop) (*prop.Properties, error) {
	p, err := prop.Export(conn, path, prop.Map{iface: props})
	if err != nil {
		return nil, fmt.Errorf("failed to export properties at %s: %w", path, err)
	}

	node := &introspect.Node{
		Name: string(path),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name:       iface,
				Properties: p.Introspection(iface),
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), path, introspectableInterface); err != nil {
		return nil, fmt.Errorf("failed to export introspection at %s: %w", path, err)
	}

	return p, nil
}
