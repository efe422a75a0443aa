// Package bustest provides an in-memory bus for testing discovery.
package bustest

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/haileys/dprom/internal/bus"
)

var _ bus.Conn = (*Bus)(nil)

const (
	errServiceUnknown   = "org.freedesktop.DBus.Error.ServiceUnknown"
	errUnknownObject    = "org.freedesktop.DBus.Error.UnknownObject"
	errUnknownInterface = "org.freedesktop.DBus.Error.UnknownInterface"
	errUnknownProperty  = "org.freedesktop.DBus.Error.UnknownProperty"
)

// Bus is a fake message bus. Peers and their objects are created by the
// test; every mutation emits the notification a real bus would.
type Bus struct {
	mu     sync.Mutex
	serial int
	names  map[string]string // name -> owner
	peers  map[string]*peer
	fails  map[propKey]error

	nameSubs map[*bus.Stream[bus.NameOwnerChange]]struct{}
	propSubs map[*propSub]struct{}

	// BeforeListNames runs after the snapshot is taken and before it is
	// returned. Use it to inject churn into the subscribe/list window.
	BeforeListNames func()
	// AfterGetProperty runs after a property value is read and before it
	// is returned.
	AfterGetProperty func(dest string, path dbus.ObjectPath, iface, prop string)
}

type peer struct {
	objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
}

type propKey struct {
	dest  string
	path  dbus.ObjectPath
	iface string
}

type propSub struct {
	key    propKey
	stream *bus.Stream[bus.PropertiesChange]
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		names:    make(map[string]string),
		peers:    make(map[string]*peer),
		fails:    make(map[propKey]error),
		nameSubs: make(map[*bus.Stream[bus.NameOwnerChange]]struct{}),
		propSubs: make(map[*propSub]struct{}),
	}
}

// Connect adds a peer and returns its unique name.
func (b *Bus) Connect() string {
	name := b.Reserve()
	b.Announce(name)
	return name
}

// Reserve creates a peer that is not yet visible on the bus, so objects
// can be exported before anyone learns about it.
func (b *Bus) Reserve() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.serial++
	name := fmt.Sprintf(":1.%d", b.serial)
	b.peers[name] = &peer{objects: make(map[dbus.ObjectPath]map[string]map[string]dbus.Variant)}

	return name
}

// Announce makes a reserved peer visible and emits its connection.
func (b *Bus) Announce(unique string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.names[unique] = unique
	b.emitNameOwner(unique, "", unique)
}

// Acquire gives the peer a well-known name.
func (b *Bus) Acquire(unique, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.names[name] = unique
	b.emitNameOwner(name, "", unique)
}

// Disconnect removes a peer along with its names and objects.
func (b *Bus) Disconnect(unique string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for name, owner := range b.names {
		if owner == unique && name != unique {
			delete(b.names, name)
			b.emitNameOwner(name, unique, "")
		}
	}
	delete(b.names, unique)
	delete(b.peers, unique)
	b.emitNameOwner(unique, unique, "")
}

// Export places an object implementing iface with the given properties on
// a peer without emitting any notification.
func (b *Bus) Export(dest string, path dbus.ObjectPath, iface string, props map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := b.peers[dest]
	if p == nil {
		panic("bustest: unknown peer " + dest)
	}

	obj := p.objects[path]
	if obj == nil {
		obj = make(map[string]map[string]dbus.Variant)
		p.objects[path] = obj
	}

	values := make(map[string]dbus.Variant, len(props))
	for k, v := range props {
		values[k] = dbus.MakeVariant(v)
	}
	obj[iface] = values
}

// Unexport removes an object from a peer.
func (b *Bus) Unexport(dest string, path dbus.ObjectPath) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p := b.peers[dest]; p != nil {
		delete(p.objects, path)
	}
}

// SetProperty updates a property and emits PropertiesChanged.
func (b *Bus) SetProperty(dest string, path dbus.ObjectPath, iface, prop string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	v := dbus.MakeVariant(value)
	if p := b.peers[dest]; p != nil {
		if obj := p.objects[path]; obj != nil && obj[iface] != nil {
			obj[iface][prop] = v
		}
	}

	b.emitProperties(propKey{dest, path, iface}, bus.PropertiesChange{
		Interface:   iface,
		Changed:     map[string]dbus.Variant{prop: v},
		Invalidated: []string{},
	})
}

// Invalidate emits PropertiesChanged listing prop as invalidated.
func (b *Bus) Invalidate(dest string, path dbus.ObjectPath, iface, prop string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.emitProperties(propKey{dest, path, iface}, bus.PropertiesChange{
		Interface:   iface,
		Changed:     map[string]dbus.Variant{},
		Invalidated: []string{prop},
	})
}

// Fail makes every property read of iface on the object return err.
func (b *Bus) Fail(dest string, path dbus.ObjectPath, iface string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.fails[propKey{dest, path, iface}] = err
}

// Shutdown ends every open stream with err, as a lost connection would.
func (b *Bus) Shutdown(err error) {
	b.mu.Lock()
	var streams []interface{ End(error) }
	for s := range b.nameSubs {
		streams = append(streams, s)
	}
	for s := range b.propSubs {
		streams = append(streams, s.stream)
	}
	b.mu.Unlock()

	for _, s := range streams {
		s.End(err)
	}
}

// Watchers returns the number of open property subscriptions on an object.
func (b *Bus) Watchers(dest string, path dbus.ObjectPath, iface string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for s := range b.propSubs {
		if s.key == (propKey{dest, path, iface}) {
			n++
		}
	}
	return n
}

// WatchNameOwners implements bus.Conn.
func (b *Bus) WatchNameOwners(ctx context.Context) (*bus.Stream[bus.NameOwnerChange], error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var stream *bus.Stream[bus.NameOwnerChange]
	stream = bus.NewStream[bus.NameOwnerChange](func() {
		b.mu.Lock()
		delete(b.nameSubs, stream)
		b.mu.Unlock()
	})
	b.nameSubs[stream] = struct{}{}

	return stream, nil
}

// ListNames implements bus.Conn.
func (b *Bus) ListNames(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	names := make([]string, 0, len(b.names)+1)
	names = append(names, "org.freedesktop.DBus")
	for name := range b.names {
		names = append(names, name)
	}
	hook := b.BeforeListNames
	b.mu.Unlock()

	if hook != nil {
		hook()
	}

	return names, nil
}

// WatchProperties implements bus.Conn.
func (b *Bus) WatchProperties(ctx context.Context, dest string, path dbus.ObjectPath, iface string) (*bus.Stream[bus.PropertiesChange], error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &propSub{key: propKey{dest, path, iface}}
	sub.stream = bus.NewStream[bus.PropertiesChange](func() {
		b.mu.Lock()
		delete(b.propSubs, sub)
		b.mu.Unlock()
	})
	b.propSubs[sub] = struct{}{}

	return sub.stream, nil
}

// GetProperty implements bus.Conn.
func (b *Bus) GetProperty(ctx context.Context, dest string, path dbus.ObjectPath, iface, prop string) (dbus.Variant, error) {
	if err := ctx.Err(); err != nil {
		return dbus.Variant{}, err
	}

	b.mu.Lock()
	v, err := b.lookup(dest, path, iface, prop)
	hook := b.AfterGetProperty
	b.mu.Unlock()

	if err != nil {
		return dbus.Variant{}, err
	}
	if hook != nil {
		hook(dest, path, iface, prop)
	}

	return v, nil
}

func (b *Bus) lookup(dest string, path dbus.ObjectPath, iface, prop string) (dbus.Variant, error) {
	if err := b.fails[propKey{dest, path, iface}]; err != nil {
		return dbus.Variant{}, err
	}

	p := b.peers[dest]
	if p == nil {
		return dbus.Variant{}, dbusError(errServiceUnknown, "no such peer "+dest)
	}
	obj := p.objects[path]
	if obj == nil {
		return dbus.Variant{}, dbusError(errUnknownObject, "no such object "+string(path))
	}
	props := obj[iface]
	if props == nil {
		return dbus.Variant{}, dbusError(errUnknownInterface, "no such interface "+iface)
	}
	v, ok := props[prop]
	if !ok {
		return dbus.Variant{}, dbusError(errUnknownProperty, "no such property "+prop)
	}
	return v, nil
}

func (b *Bus) emitNameOwner(name, oldOwner, newOwner string) {
	change := bus.NameOwnerChange{Name: name, OldOwner: oldOwner, NewOwner: newOwner}
	for s := range b.nameSubs {
		s.Push(change)
	}
}

func (b *Bus) emitProperties(key propKey, change bus.PropertiesChange) {
	for s := range b.propSubs {
		if s.key == key {
			s.stream.Push(change)
		}
	}
}

func dbusError(name, msg string) dbus.Error {
	return dbus.Error{Name: name, Body: []interface{}{msg}}
}
