package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

// RawGaugeConfig represents the unparsed file-gauge producer YAML structure
type RawGaugeConfig struct {
	Bus    string            `yaml:"bus"`
	Watch  RawWatchConfig    `yaml:"watch"`
	Gauges map[string]string `yaml:"gauges"`
}

// RawWatchConfig controls when gauge files are sampled
type RawWatchConfig struct {
	RefreshSecs *float64 `yaml:"refresh_secs,omitempty"`
	Notify      *bool    `yaml:"notify,omitempty"`
}

// ParseGauges reads and parses a file-gauge YAML configuration file
func ParseGauges(path string) (*RawGaugeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseGaugesBytes(data)
}

// ParseGaugesBytes parses file-gauge YAML configuration content
func ParseGaugesBytes(data []byte) (*RawGaugeConfig, error) {
	var raw RawGaugeConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if len(raw.Gauges) == 0 {
		return nil, fmt.Errorf("at least one gauge must be defined")
	}

	return &raw, nil
}
