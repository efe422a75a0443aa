package bus

import (
	"sync"

	"github.com/godbus/dbus/v5"
)

// router fans signals of one connection out to subscribers. Handlers run
// with the router lock held and must not block; they only push onto
// unbounded streams.
type router struct {
	mu     sync.Mutex
	subs   map[uint64]*subscriber
	nextID uint64
	closed bool
}

type subscriber struct {
	handle func(*dbus.Signal)
	end    func(error)
}

func newRouter() *router {
	return &router{subs: make(map[uint64]*subscriber)}
}

// run dispatches signals until ch is closed, then ends every subscriber.
func (r *router) run(ch <-chan *dbus.Signal) {
	for sig := range ch {
		r.dispatch(sig)
	}
	r.shutdown(ErrClosed)
}

func (r *router) dispatch(sig *dbus.Signal) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.subs {
		s.handle(sig)
	}
}

func (r *router) shutdown(err error) {
	r.mu.Lock()
	subs := r.subs
	r.subs = make(map[uint64]*subscriber)
	r.closed = true
	r.mu.Unlock()

	for _, s := range subs {
		s.end(err)
	}
}

func (r *router) subscribe(handle func(*dbus.Signal), end func(error)) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}

	id := r.nextID
	r.nextID++
	r.subs[id] = &subscriber{handle: handle, end: end}

	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}, nil
}

func (r *router) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.subs)
}

// watchNameOwners subscribes a stream to NameOwnerChanged signals.
func watchNameOwners(r *router) (*Stream[NameOwnerChange], error) {
	var unsubscribe func()
	stream := NewStream[NameOwnerChange](func() { unsubscribe() })

	unsubscribe, err := r.subscribe(func(sig *dbus.Signal) {
		if change, ok := parseNameOwnerChanged(sig); ok {
			stream.Push(change)
		}
	}, stream.End)
	if err != nil {
		return nil, err
	}

	return stream, nil
}

// watchProperties subscribes a stream to PropertiesChanged signals for one
// interface of one object of one peer.
func watchProperties(r *router, dest string, path dbus.ObjectPath, iface string) (*Stream[PropertiesChange], error) {
	var unsubscribe func()
	stream := NewStream[PropertiesChange](func() { unsubscribe() })

	unsubscribe, err := r.subscribe(func(sig *dbus.Signal) {
		if sig.Sender != dest || sig.Path != path {
			return
		}
		if change, ok := parsePropertiesChanged(sig); ok && change.Interface == iface {
			stream.Push(change)
		}
	}, stream.End)
	if err != nil {
		return nil, err
	}

	return stream, nil
}

func parseNameOwnerChanged(sig *dbus.Signal) (NameOwnerChange, bool) {
	if sig.Name != busNameOwnerEvent || sig.Path != busPath || sig.Sender != busName {
		return NameOwnerChange{}, false
	}
	if len(sig.Body) != 3 {
		return NameOwnerChange{}, false
	}

	name, ok1 := sig.Body[0].(string)
	oldOwner, ok2 := sig.Body[1].(string)
	newOwner, ok3 := sig.Body[2].(string)
	if !ok1 || !ok2 || !ok3 {
		return NameOwnerChange{}, false
	}

	return NameOwnerChange{Name: name, OldOwner: oldOwner, NewOwner: newOwner}, true
}

func parsePropertiesChanged(sig *dbus.Signal) (PropertiesChange, bool) {
	if sig.Name != propertiesChanged || len(sig.Body) != 3 {
		return PropertiesChange{}, false
	}

	iface, ok1 := sig.Body[0].(string)
	changed, ok2 := sig.Body[1].(map[string]dbus.Variant)
	invalidated, ok3 := sig.Body[2].([]string)
	if !ok1 || !ok2 || !ok3 {
		return PropertiesChange{}, false
	}

	return PropertiesChange{Interface: iface, Changed: changed, Invalidated: invalidated}, true
}
