package config

import (
	"fmt"

	"github.com/haileys/dprom/internal/bus"
)

// Config holds the complete exporter configuration.
type Config struct {
	DBus     DBusConfig
	HTTP     HTTPConfig
	OTEL     *OTELExportConfig
	Settings SettingsConfig
}

// Validate applies defaults and validates the whole configuration.
func (c *Config) Validate() error {
	if err := c.DBus.Validate(); err != nil {
		return err
	}
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	if c.OTEL != nil && c.OTEL.Enabled {
		if err := c.OTEL.Validate(); err != nil {
			return err
		}
	}
	return c.Settings.Validate()
}

// OTELEnabled reports whether the OTLP push exporter should run.
func (c *Config) OTELEnabled() bool {
	return c.OTEL != nil && c.OTEL.Enabled
}

// DBusConfig selects the buses discovery runs on.
type DBusConfig struct {
	System  bool
	Session bool
}

// Validate checks that at least one bus is selected.
func (c *DBusConfig) Validate() error {
	if !c.System && !c.Session {
		return fmt.Errorf("at least one bus must be enabled (dbus.system or dbus.session)")
	}
	return nil
}

// Buses lists the selected buses, system first.
func (c *DBusConfig) Buses() []bus.Kind {
	var buses []bus.Kind
	if c.System {
		buses = append(buses, bus.System)
	}
	if c.Session {
		buses = append(buses, bus.Session)
	}
	return buses
}
