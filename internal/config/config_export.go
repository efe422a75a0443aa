package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	// HTTP defaults
	DefaultHTTPPath = "/metrics"

	// OTEL defaults
	DefaultOTELReadInterval = 1 * time.Second
	DefaultOTELPushInterval = 10 * time.Second
	DefaultOTELTransport    = "grpc"
	DefaultOTELHost         = "localhost"
	DefaultOTELPortGRPC     = 4317
	DefaultOTELPortHTTP     = 4318
	DefaultServiceName      = "dprom"
	DefaultServiceVersion   = "dev"
)

// HTTPConfig defines the rendering endpoint.
type HTTPConfig struct {
	Listen string
	Path   string
	TLS    *TLSConfig
}

// Validate applies defaults and validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("http.listen is required")
	}

	_, port, err := net.SplitHostPort(c.Listen)
	if err != nil {
		return fmt.Errorf("invalid http.listen %q: %w", c.Listen, err)
	}
	if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid http.listen port: %q", port)
	}

	if c.Path == "" {
		c.Path = DefaultHTTPPath
	}
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("http.path must start with /: %q", c.Path)
	}
	if c.Path == "/" {
		return fmt.Errorf("http.path cannot be /, it serves the index page")
	}

	if c.TLS != nil {
		return c.TLS.Validate()
	}
	return nil
}

// TLSConfig enables HTTPS. A non-empty ClientCA requires clients to
// present a certificate signed by it.
type TLSConfig struct {
	Cert     string
	Key      string
	ClientCA string
}

// Validate checks that both halves of the key pair are given.
func (c *TLSConfig) Validate() error {
	if c.Cert == "" {
		return fmt.Errorf("http.tls.cert is required")
	}
	if c.Key == "" {
		return fmt.Errorf("http.tls.key is required")
	}
	return nil
}

// OTELExportConfig defines OTEL push settings.
type OTELExportConfig struct {
	Enabled   bool
	Transport string
	Host      string
	Port      int
	Interval  IntervalConfig
	Resource  map[string]string
	Headers   map[string]string
}

// IntervalConfig defines read and push intervals for OTEL.
type IntervalConfig struct {
	Read time.Duration
	Push time.Duration
}

// Validate applies defaults and validates OTEL configuration.
func (c *OTELExportConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Transport == "" {
		c.Transport = DefaultOTELTransport
	}
	if c.Transport != "grpc" && c.Transport != "http" {
		return fmt.Errorf("invalid transport: %s (must be grpc or http)", c.Transport)
	}

	if c.Host == "" {
		c.Host = DefaultOTELHost
	}

	// Apply port default based on transport
	if c.Port == 0 {
		if c.Transport == "grpc" {
			c.Port = DefaultOTELPortGRPC
		} else {
			c.Port = DefaultOTELPortHTTP
		}
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid otel port: %d", c.Port)
	}

	if c.Interval.Read == 0 {
		c.Interval.Read = DefaultOTELReadInterval
	}
	if c.Interval.Push == 0 {
		c.Interval.Push = DefaultOTELPushInterval
	}
	if c.Interval.Read < 0 || c.Interval.Push < 0 {
		return fmt.Errorf("invalid otel interval: read %s, push %s", c.Interval.Read, c.Interval.Push)
	}

	if c.Resource == nil {
		c.Resource = make(map[string]string)
	}
	if _, exists := c.Resource["service.name"]; !exists {
		c.Resource["service.name"] = DefaultServiceName
	}
	if _, exists := c.Resource["service.version"]; !exists {
		c.Resource["service.version"] = DefaultServiceVersion
	}

	return nil
}

// GetEndpoint returns the full endpoint address.
func (c *OTELExportConfig) GetEndpoint() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
