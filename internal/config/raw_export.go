package config

import (
	"time"

	"go.yaml.in/yaml/v4"
)

// RawHTTPConfig defines the rendering endpoint
type RawHTTPConfig struct {
	Listen string        `yaml:"listen"`
	Path   string        `yaml:"path"`
	TLS    *RawTLSConfig `yaml:"tls,omitempty"`
}

// RawTLSConfig enables HTTPS on the rendering endpoint
type RawTLSConfig struct {
	Cert   string           `yaml:"cert"`
	Key    string           `yaml:"key"`
	Verify *RawVerifyConfig `yaml:"verify,omitempty"`
}

// RawVerifyConfig requires client certificates signed by CA
type RawVerifyConfig struct {
	CA string `yaml:"ca"`
}

// RawOTELExportConfig defines OTEL push settings
type RawOTELExportConfig struct {
	Enabled   bool              `yaml:"enabled"`
	Transport string            `yaml:"transport"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	Interval  RawIntervalConfig `yaml:"interval"`
	Resource  map[string]string `yaml:"resource,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
}

// RawIntervalConfig defines read and push intervals for OTEL
type RawIntervalConfig struct {
	Read time.Duration
	Push time.Duration
}

// UnmarshalYAML handles both simple (10s) and detailed (read/push) forms
func (i *RawIntervalConfig) UnmarshalYAML(value *yaml.Node) error {
	var simple time.Duration
	if err := value.Decode(&simple); err == nil {
		i.Read = simple
		i.Push = simple
		return nil
	}

	type intervalConfig struct {
		Read time.Duration `yaml:"read"`
		Push time.Duration `yaml:"push"`
	}
	var detailed intervalConfig
	if err := value.Decode(&detailed); err != nil {
		return err
	}
	i.Read = detailed.Read
	i.Push = detailed.Push
	return nil
}
