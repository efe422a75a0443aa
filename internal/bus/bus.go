// Package bus is the D-Bus boundary of dprom: the wire names of the dprom
// object model and the operations discovery needs from a connection.
package bus

import (
	"context"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/haileys/dprom/internal/metric"
)

// Object model shared by exporter and producers.
const (
	RootPath = dbus.ObjectPath("/org/hails/dprom")

	DPromInterface   = "org.hails.dprom.DProm1"
	GaugeInterface   = "org.hails.dprom.Gauge1"
	CounterInterface = "org.hails.dprom.Counter1"

	PropMetrics = "Metrics"
	PropName    = "Name"
	PropValue   = "Value"
)

const (
	propertiesInterface = "org.freedesktop.DBus.Properties"
	propertiesGet       = propertiesInterface + ".Get"
	propertiesChanged   = propertiesInterface + ".PropertiesChanged"

	busName           = "org.freedesktop.DBus"
	busPath           = dbus.ObjectPath("/org/freedesktop/DBus")
	busListNames      = busName + ".ListNames"
	busNameOwnerEvent = busName + ".NameOwnerChanged"
)

// NameOwnerChange is one NameOwnerChanged notification from the bus.
type NameOwnerChange struct {
	Name     string
	OldOwner string
	NewOwner string
}

// PropertiesChange is one PropertiesChanged notification for a single
// interface of an object.
type PropertiesChange struct {
	Interface   string
	Changed     map[string]dbus.Variant
	Invalidated []string
}

// Conn is what discovery needs from a bus connection. Watch calls return
// once the subscription is active, so a read issued afterwards cannot miss
// a change that happens after it.
type Conn interface {
	WatchNameOwners(ctx context.Context) (*Stream[NameOwnerChange], error)
	ListNames(ctx context.Context) ([]string, error)
	WatchProperties(ctx context.Context, dest string, path dbus.ObjectPath, iface string) (*Stream[PropertiesChange], error)
	GetProperty(ctx context.Context, dest string, path dbus.ObjectPath, iface, prop string) (dbus.Variant, error)
}

// IsUniqueName reports whether name is a connection-unique bus name, as
// opposed to a well-known alias.
func IsUniqueName(name string) bool {
	return strings.HasPrefix(name, ":")
}

// MetricPath returns the object path of the metric called name.
func MetricPath(name string) (dbus.ObjectPath, error) {
	if err := metric.ValidateName(name); err != nil {
		return "", err
	}

	path := dbus.ObjectPath(fmt.Sprintf("%s/metric/%s", RootPath, name))
	if !path.IsValid() {
		return "", fmt.Errorf("invalid object path %q", path)
	}
	return path, nil
}
