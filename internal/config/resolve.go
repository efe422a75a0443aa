package config

import (
	"fmt"
	"maps"
)

const (
	DefaultSystemBus  = true
	DefaultSessionBus = false
)

// Resolve builds the final config from raw, applying defaults
func Resolve(raw *RawConfig) (*Config, error) {
	cfg := &Config{
		DBus: DBusConfig{
			System:  boolOr(raw.DBus.System, DefaultSystemBus),
			Session: boolOr(raw.DBus.Session, DefaultSessionBus),
		},
		HTTP: HTTPConfig{
			Listen: raw.HTTP.Listen,
			Path:   raw.HTTP.Path,
		},
		Settings: SettingsConfig{
			InternalMetrics: InternalMetricsConfig{
				Enabled: raw.Settings.InternalMetrics.Enabled,
			},
			Monitor: MonitorConfig{
				Interval: raw.Settings.Monitor.Interval,
			},
		},
	}

	if tls := raw.HTTP.TLS; tls != nil {
		cfg.HTTP.TLS = &TLSConfig{
			Cert: tls.Cert,
			Key:  tls.Key,
		}
		if tls.Verify != nil {
			cfg.HTTP.TLS.ClientCA = tls.Verify.CA
		}
	}

	if o := raw.OTEL; o != nil {
		cfg.OTEL = &OTELExportConfig{
			Enabled:   o.Enabled,
			Transport: o.Transport,
			Host:      o.Host,
			Port:      o.Port,
			Interval: IntervalConfig{
				Read: o.Interval.Read,
				Push: o.Interval.Push,
			},
			Resource: maps.Clone(o.Resource),
			Headers:  maps.Clone(o.Headers),
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
