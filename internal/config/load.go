package config

import (
	"fmt"
)

// Load reads and resolves an exporter configuration file
func Load(path string) (*Config, error) {
	raw, err := Parse(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg, err := Resolve(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config %s: %w", path, err)
	}

	return cfg, nil
}

// LoadGauges reads and resolves a file-gauge producer configuration file
func LoadGauges(path string) (*GaugeConfig, error) {
	raw, err := ParseGauges(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg, err := ResolveGauges(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config %s: %w", path, err)
	}

	return cfg, nil
}
