package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/haileys/dprom/internal/bus"
)

type peerEvent struct {
	peer      string
	connected bool
}

// peerEventFrom maps a NameOwnerChanged notification onto a peer
// lifetime event. Well-known names are aliases, not peers, and ownership
// transfers between two owners do not start or end a connection.
func peerEventFrom(change bus.NameOwnerChange) (peerEvent, bool) {
	if !bus.IsUniqueName(change.Name) {
		return peerEvent{}, false
	}

	switch {
	case change.OldOwner == "" && change.NewOwner != "":
		return peerEvent{peer: change.Name, connected: true}, true
	case change.OldOwner != "" && change.NewOwner == "":
		return peerEvent{peer: change.Name, connected: false}, true
	default:
		return peerEvent{}, false
	}
}

// Run watches the bus directory until ctx is done or the connection
// fails, and always returns a non-nil error: ctx.Err() on cancellation,
// the connection fault otherwise.
func (e *Engine) Run(ctx context.Context) error {
	changes, err := e.conn.WatchNameOwners(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch name owners: %w", err)
	}
	defer changes.Close()

	names, err := e.conn.ListNames(ctx)
	if err != nil {
		return fmt.Errorf("failed to list names: %w", err)
	}

	peers := newTaskSet(e.runPeer)
	defer func() {
		peers.stopAll()
		e.peers.Store(0)
	}()

	for _, name := range names {
		if bus.IsUniqueName(name) {
			peers.add(ctx, name)
		}
	}
	e.peers.Store(int64(peers.len()))
	e.logger.Info("watching bus", "peers", peers.len())

	for {
		change, err := changes.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("name owner stream ended")
			}
			return err
		}

		ev, ok := peerEventFrom(change)
		if !ok {
			continue
		}

		if ev.connected {
			peers.add(ctx, ev.peer)
		} else {
			peers.remove(ev.peer)
		}
		e.peers.Store(int64(peers.len()))
	}
}
