package config

import (
	"fmt"
	"time"
)

// SettingsConfig holds general application settings.
type SettingsConfig struct {
	InternalMetrics InternalMetricsConfig
	Monitor         MonitorConfig
}

// InternalMetricsConfig controls dprom's self-monitoring metrics.
type InternalMetricsConfig struct {
	Enabled bool
}

// MonitorConfig controls the periodic resource log. A zero interval
// disables it.
type MonitorConfig struct {
	Interval time.Duration
}

// Validate validates settings configuration.
func (s *SettingsConfig) Validate() error {
	if s.Monitor.Interval < 0 {
		return fmt.Errorf("invalid settings.monitor.interval: %s (must not be negative)", s.Monitor.Interval)
	}
	return nil
}
