package bus

import (
	"errors"

	"github.com/godbus/dbus/v5"
)

// IsCapabilityMismatch reports whether err says the remote object lacks
// the probed interface or member. Such errors are not faults: the object
// is simply not of the probed kind.
func IsCapabilityMismatch(err error) bool {
	var e dbus.Error
	if errors.As(err, &e) {
		return isCapabilityErrorName(e.Name)
	}

	var pe *dbus.Error
	if errors.As(err, &pe) && pe != nil {
		return isCapabilityErrorName(pe.Name)
	}

	return false
}

// isCapabilityErrorName covers the names used by zbus, sd-bus, GDBus and
// godbus object servers.
func isCapabilityErrorName(name string) bool {
	switch name {
	case "org.freedesktop.DBus.Error.UnknownObject",
		"org.freedesktop.DBus.Error.UnknownInterface",
		"org.freedesktop.DBus.Error.UnknownMethod",
		"org.freedesktop.DBus.Error.UnknownProperty",
		"org.freedesktop.DBus.Error.NoSuchObject",
		"org.freedesktop.DBus.Properties.Error.InterfaceNotFound",
		"org.freedesktop.DBus.Properties.Error.PropertyNotFound":
		return true
	default:
		return false
	}
}
