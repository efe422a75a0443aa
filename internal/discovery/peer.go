package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/godbus/dbus/v5"
	"github.com/haileys/dprom/internal/bus"
	"github.com/haileys/dprom/internal/logging"
)

// runPeer watches one peer's metric set. Peers that do not serve the dprom
// root object end quietly; other failures are logged here and end only
// this peer's watcher.
func (e *Engine) runPeer(ctx context.Context, peer string) error {
	logger := e.logger.With("bus", peer)

	err := e.watchPeer(ctx, logger, peer)
	switch {
	case err == nil, ctx.Err() != nil:
		return nil
	case bus.IsCapabilityMismatch(err):
		logging.Trace(ctx, logger, "not a dprom peer")
		return nil
	default:
		logger.Error("bus error", "error", err)
		return err
	}
}

func (e *Engine) watchPeer(ctx context.Context, logger *slog.Logger, peer string) error {
	changes, err := e.conn.WatchProperties(ctx, peer, bus.RootPath, bus.DPromInterface)
	if err != nil {
		return err
	}
	defer changes.Close()

	v, err := e.conn.GetProperty(ctx, peer, bus.RootPath, bus.DPromInterface, bus.PropMetrics)
	if err != nil {
		return err
	}
	paths, err := decodePaths(v)
	if err != nil {
		return err
	}

	// logged only now: non-dprom peers have bailed out above
	logging.Trace(ctx, logger, "watching bus")
	e.participants.Add(1)
	defer e.participants.Add(-1)

	metrics := newTaskSet(func(ctx context.Context, path dbus.ObjectPath) error {
		return e.runMetric(ctx, logger, peer, path)
	})
	defer metrics.stopAll()

	metrics.replace(ctx, paths)

	for {
		change, err := changes.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		v, ok, err := changedProperty(ctx, e.conn, peer, bus.RootPath, change, bus.PropMetrics)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		paths, err := decodePaths(v)
		if err != nil {
			return err
		}
		logger.Debug("metric set changed", "metrics", len(paths))
		metrics.replace(ctx, paths)
	}
}

// changedProperty extracts prop from a change notification. An
// invalidated property is read back from the object; a property the
// notification does not mention yields ok == false.
func changedProperty(ctx context.Context, conn bus.Conn, dest string, path dbus.ObjectPath, change bus.PropertiesChange, prop string) (dbus.Variant, bool, error) {
	if v, ok := change.Changed[prop]; ok {
		return v, true, nil
	}

	if slices.Contains(change.Invalidated, prop) {
		v, err := conn.GetProperty(ctx, dest, path, change.Interface, prop)
		if err != nil {
			return dbus.Variant{}, false, err
		}
		return v, true, nil
	}

	return dbus.Variant{}, false, nil
}

func decodePaths(v dbus.Variant) ([]dbus.ObjectPath, error) {
	paths, ok := v.Value().([]dbus.ObjectPath)
	if !ok {
		return nil, fmt.Errorf("unexpected %s type %s, want ao", bus.PropMetrics, v.Signature())
	}
	return paths, nil
}
