package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/godbus/dbus/v5"
	"github.com/haileys/dprom/internal/bus"
	"github.com/haileys/dprom/internal/logging"
	"github.com/haileys/dprom/internal/metric"
)

// kind is one metric interface a watcher can probe for.
type kind struct {
	typ    metric.Type
	iface  string
	decode func(dbus.Variant) (metric.Value, error)
}

// kinds are probed in order until one matches.
var kinds = []kind{
	{typ: metric.TypeGauge, iface: bus.GaugeInterface, decode: decodeGauge},
	{typ: metric.TypeCounter, iface: bus.CounterInterface, decode: decodeCounter},
}

func decodeGauge(v dbus.Variant) (metric.Value, error) {
	f, ok := v.Value().(float64)
	if !ok {
		return metric.Value{}, fmt.Errorf("unexpected gauge value type %s, want d", v.Signature())
	}
	return metric.Gauge(f), nil
}

func decodeCounter(v dbus.Variant) (metric.Value, error) {
	n, ok := v.Value().(uint64)
	if !ok {
		return metric.Value{}, fmt.Errorf("unexpected counter value type %s, want t", v.Signature())
	}
	return metric.Counter(n), nil
}

// errMismatch marks a probe that found the object lacks the kind's
// interface; the next kind is tried.
var errMismatch = errors.New("capability mismatch")

// runMetric watches one metric object until it goes away or ctx is done.
func (e *Engine) runMetric(ctx context.Context, logger *slog.Logger, peer string, path dbus.ObjectPath) error {
	e.watchers.Add(1)
	defer e.watchers.Add(-1)

	logger = logger.With("path", string(path))
	logging.Trace(ctx, logger, "watching metric")

	err := e.watchMetric(ctx, logger, peer, path)
	if err != nil && ctx.Err() == nil {
		logger.Error("error watching metric", "error", err)
		return err
	}
	return nil
}

func (e *Engine) watchMetric(ctx context.Context, logger *slog.Logger, peer string, path dbus.ObjectPath) error {
	for _, k := range kinds {
		err := e.watchKind(ctx, logger, peer, path, k)
		if errors.Is(err, errMismatch) {
			logging.Trace(ctx, logger, "not a "+string(k.typ))
			continue
		}
		return err
	}

	logger.Warn("unknown metric type")
	return nil
}

// watchKind probes path as k and, on success, streams its values into the
// registry. Capability errors during the probe yield errMismatch; after
// the probe they mean the object went away and end the watch quietly.
func (e *Engine) watchKind(ctx context.Context, logger *slog.Logger, peer string, path dbus.ObjectPath, k kind) error {
	// open the stream before reading the first value so no change is lost
	changes, err := e.conn.WatchProperties(ctx, peer, path, k.iface)
	if err != nil {
		return err
	}
	defer changes.Close()

	nameValue, err := e.conn.GetProperty(ctx, peer, path, k.iface, bus.PropName)
	if err != nil {
		return probeError(err)
	}
	initial, err := e.conn.GetProperty(ctx, peer, path, k.iface, bus.PropValue)
	if err != nil {
		return probeError(err)
	}

	name, ok := nameValue.Value().(string)
	if !ok {
		return fmt.Errorf("unexpected %s type %s, want s", bus.PropName, nameValue.Signature())
	}
	if err := metric.ValidateName(name); err != nil {
		return err
	}
	value, err := k.decode(initial)
	if err != nil {
		return err
	}

	// a watcher replaced while probing must not take the name from its
	// successor
	if err := ctx.Err(); err != nil {
		return err
	}

	handle := e.registry.Register(name)
	defer handle.Close()

	logger.Debug("registered metric", "name", name, "type", k.typ, "token", handle.Token())

	if err := handle.Publish(ctx, value); err != nil {
		return err
	}

	for {
		change, err := changes.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		v, ok, err := changedProperty(ctx, e.conn, peer, path, change, bus.PropValue)
		if err != nil {
			if bus.IsCapabilityMismatch(err) {
				logger.Debug("metric object gone", "error", err)
				return nil
			}
			return err
		}
		if !ok {
			// value omitted from this notification, not yet known
			continue
		}

		value, err := k.decode(v)
		if err != nil {
			return err
		}
		if err := handle.Publish(ctx, value); err != nil {
			return err
		}
	}
}

func probeError(err error) error {
	if bus.IsCapabilityMismatch(err) {
		return fmt.Errorf("%w: %w", errMismatch, err)
	}
	return err
}
