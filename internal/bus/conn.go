package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

// signalBuffer sizes the channel godbus delivers signals on; the router
// drains it into unbounded per-subscriber streams.
const signalBuffer = 256

// Kind selects which bus to connect to.
type Kind string

const (
	Session Kind = "session"
	System  Kind = "system"
)

var _ Conn = (*DBus)(nil)

// DBus implements Conn on a godbus connection.
type DBus struct {
	conn   *dbus.Conn
	router *router

	matchMu sync.Mutex
	matches map[string]bool
}

// Connect opens a private connection to the given bus.
func Connect(kind Kind) (*DBus, error) {
	conn, err := Dial(kind)
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

// Dial opens a private godbus connection to the given bus.
func Dial(kind Kind) (*dbus.Conn, error) {
	var (
		conn *dbus.Conn
		err  error
	)

	switch kind {
	case Session:
		conn, err = dbus.ConnectSessionBus()
	case System:
		conn, err = dbus.ConnectSystemBus()
	default:
		return nil, fmt.Errorf("unknown bus kind: %s", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s bus: %w", kind, err)
	}

	return conn, nil
}

// New wraps an established connection.
func New(conn *dbus.Conn) *DBus {
	d := &DBus{
		conn:    conn,
		router:  newRouter(),
		matches: make(map[string]bool),
	}

	signals := make(chan *dbus.Signal, signalBuffer)
	conn.Signal(signals)
	go d.router.run(signals)

	return d
}

// Conn returns the underlying godbus connection.
func (d *DBus) Conn() *dbus.Conn {
	return d.conn
}

// Close closes the connection and ends all open streams.
func (d *DBus) Close() error {
	return d.conn.Close()
}

// WatchNameOwners subscribes to peer connect/disconnect notifications.
func (d *DBus) WatchNameOwners(ctx context.Context) (*Stream[NameOwnerChange], error) {
	stream, err := watchNameOwners(d.router)
	if err != nil {
		return nil, err
	}

	err = d.addMatch("NameOwnerChanged",
		dbus.WithMatchSender(busName),
		dbus.WithMatchObjectPath(busPath),
		dbus.WithMatchInterface(busName),
		dbus.WithMatchMember("NameOwnerChanged"),
	)
	if err != nil {
		stream.Close()
		return nil, err
	}

	return stream, nil
}

// ListNames returns every name currently present on the bus.
func (d *DBus) ListNames(ctx context.Context) ([]string, error) {
	var names []string

	err := d.conn.BusObject().CallWithContext(ctx, busListNames, 0).Store(&names)
	if err != nil {
		return nil, fmt.Errorf("ListNames: %w", err)
	}

	return names, nil
}

// WatchProperties subscribes to property changes of iface on one object.
// A single match rule per interface covers every object and peer.
func (d *DBus) WatchProperties(ctx context.Context, dest string, path dbus.ObjectPath, iface string) (*Stream[PropertiesChange], error) {
	stream, err := watchProperties(d.router, dest, path, iface)
	if err != nil {
		return nil, err
	}

	err = d.addMatch("PropertiesChanged:"+iface,
		dbus.WithMatchInterface(propertiesInterface),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchArg(0, iface),
	)
	if err != nil {
		stream.Close()
		return nil, err
	}

	return stream, nil
}

// GetProperty reads one property.
func (d *DBus) GetProperty(ctx context.Context, dest string, path dbus.ObjectPath, iface, prop string) (dbus.Variant, error) {
	var v dbus.Variant

	err := d.conn.Object(dest, path).CallWithContext(ctx, propertiesGet, 0, iface, prop).Store(&v)
	if err != nil {
		return dbus.Variant{}, fmt.Errorf("get %s.%s: %w", iface, prop, err)
	}

	return v, nil
}

// addMatch installs a match rule once per key for the connection lifetime.
func (d *DBus) addMatch(key string, options ...dbus.MatchOption) error {
	d.matchMu.Lock()
	defer d.matchMu.Unlock()

	if d.matches[key] {
		return nil
	}
	if err := d.conn.AddMatchSignal(options...); err != nil {
		return fmt.Errorf("failed to add match rule for %s: %w", key, err)
	}
	d.matches[key] = true

	return nil
}
