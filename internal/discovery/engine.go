// Package discovery finds dprom metrics on a bus and keeps the registry
// fed with their live values.
//
// Three nested watchers do the work. The directory watcher tracks the
// peers connected to the bus and runs one peer watcher for each. A peer
// watcher tracks the metric objects the peer advertises on its root
// object and runs one metric watcher for each. A metric watcher probes
// the object's kind, registers its name and forwards every value change.
//
// Every layer subscribes to change notifications before reading the
// current state, and replays the read as the first element of the
// notification stream, so nothing that changes in between is missed.
package discovery

import (
	"log/slog"
	"sync/atomic"

	"github.com/haileys/dprom/internal/bus"
	"github.com/haileys/dprom/internal/metric"
)

// Engine runs discovery for one bus connection.
type Engine struct {
	conn     bus.Conn
	registry *metric.Registry
	logger   *slog.Logger

	peers        atomic.Int64
	participants atomic.Int64
	watchers     atomic.Int64
}

// New creates an engine publishing into registry.
func New(conn bus.Conn, registry *metric.Registry, logger *slog.Logger) *Engine {
	return &Engine{
		conn:     conn,
		registry: registry,
		logger:   logger,
	}
}

// Peers returns the number of tracked bus peers.
func (e *Engine) Peers() int {
	return int(e.peers.Load())
}

// Participants returns the number of peers currently exporting metrics.
func (e *Engine) Participants() int {
	return int(e.participants.Load())
}

// Watchers returns the number of running metric watchers.
func (e *Engine) Watchers() int {
	return int(e.watchers.Load())
}

// Stats reports discovery counts for the resource monitor.
func (e *Engine) Stats() []slog.Attr {
	return []slog.Attr{
		slog.Int("peers", e.Peers()),
		slog.Int("dprom_peers", e.Participants()),
		slog.Int("watchers", e.Watchers()),
	}
}
