package config

import "time"

// RawSettingsConfig holds general application settings
type RawSettingsConfig struct {
	InternalMetrics RawInternalMetricsConfig `yaml:"internal_metrics"`
	Monitor         RawMonitorConfig         `yaml:"monitor"`
}

// RawInternalMetricsConfig controls dprom's self-monitoring metrics
type RawInternalMetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// RawMonitorConfig controls the periodic resource log
type RawMonitorConfig struct {
	Interval time.Duration `yaml:"interval"`
}
