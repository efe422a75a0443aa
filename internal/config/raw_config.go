package config

// RawConfig represents the unparsed exporter YAML structure
type RawConfig struct {
	DBus     RawDBusConfig        `yaml:"dbus"`
	HTTP     RawHTTPConfig        `yaml:"http"`
	OTEL     *RawOTELExportConfig `yaml:"otel,omitempty"`
	Settings RawSettingsConfig    `yaml:"settings"`
}

// RawDBusConfig selects the buses to discover metrics on.
// Unset fields take their defaults during resolution.
type RawDBusConfig struct {
	System  *bool `yaml:"system,omitempty"`
	Session *bool `yaml:"session,omitempty"`
}
