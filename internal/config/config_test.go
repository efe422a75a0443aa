package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/haileys/dprom/internal/bus"
	"github.com/stretchr/testify/require"
)

func resolveYAML(t *testing.T, src string) (*Config, error) {
	t.Helper()

	raw, err := ParseBytes([]byte(src))
	if err != nil {
		return nil, err
	}
	return Resolve(raw)
}

func TestResolveDefaults(t *testing.T) {
	cfg, err := resolveYAML(t, `
http:
  listen: "127.0.0.1:9207"
`)
	require.NoError(t, err)

	require.True(t, cfg.DBus.System)
	require.False(t, cfg.DBus.Session)
	require.Equal(t, []bus.Kind{bus.System}, cfg.DBus.Buses())
	require.Equal(t, DefaultHTTPPath, cfg.HTTP.Path)
	require.Nil(t, cfg.HTTP.TLS)
	require.False(t, cfg.OTELEnabled())
	require.False(t, cfg.Settings.InternalMetrics.Enabled)
	require.Zero(t, cfg.Settings.Monitor.Interval)
}

func TestResolveFull(t *testing.T) {
	cfg, err := resolveYAML(t, `
dbus:
  system: false
  session: true
http:
  listen: "[::1]:9207"
  path: /prom
  tls:
    cert: server.pem
    key: server.key
    verify:
      ca: ca.pem
otel:
  enabled: true
  transport: http
  interval:
    read: 2s
    push: 30s
  resource:
    service.name: bridge
settings:
  internal_metrics:
    enabled: true
  monitor:
    interval: 1m
`)
	require.NoError(t, err)

	require.Equal(t, []bus.Kind{bus.Session}, cfg.DBus.Buses())
	require.Equal(t, "/prom", cfg.HTTP.Path)
	require.Equal(t, &TLSConfig{Cert: "server.pem", Key: "server.key", ClientCA: "ca.pem"}, cfg.HTTP.TLS)

	require.True(t, cfg.OTELEnabled())
	require.Equal(t, "localhost:4318", cfg.OTEL.GetEndpoint())
	require.Equal(t, 2*time.Second, cfg.OTEL.Interval.Read)
	require.Equal(t, 30*time.Second, cfg.OTEL.Interval.Push)
	require.Equal(t, "bridge", cfg.OTEL.Resource["service.name"])
	require.Equal(t, DefaultServiceVersion, cfg.OTEL.Resource["service.version"])

	require.True(t, cfg.Settings.InternalMetrics.Enabled)
	require.Equal(t, time.Minute, cfg.Settings.Monitor.Interval)
}

func TestOTELSimpleInterval(t *testing.T) {
	cfg, err := resolveYAML(t, `
http:
  listen: ":9207"
otel:
  enabled: true
  interval: 5s
`)
	require.NoError(t, err)
	require.Equal(t, "grpc", cfg.OTEL.Transport)
	require.Equal(t, DefaultOTELPortGRPC, cfg.OTEL.Port)
	require.Equal(t, IntervalConfig{Read: 5 * time.Second, Push: 5 * time.Second}, cfg.OTEL.Interval)
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "missing listen",
			src:  "dbus: {session: true}",
			want: "http.listen is required",
		},
		{
			name: "bad listen",
			src:  "http: {listen: localhost}",
			want: "invalid http.listen",
		},
		{
			name: "no bus",
			src:  "dbus: {system: false}\nhttp: {listen: ':1'}",
			want: "at least one bus",
		},
		{
			name: "tls without key",
			src:  "http: {listen: ':1', tls: {cert: a.pem}}",
			want: "both cert and key",
		},
		{
			name: "empty ca",
			src:  "http: {listen: ':1', tls: {cert: a.pem, key: a.key, verify: {}}}",
			want: "verify.ca",
		},
		{
			name: "root path",
			src:  "http: {listen: ':1', path: /}",
			want: "index page",
		},
		{
			name: "otel transport",
			src:  "http: {listen: ':1'}\notel: {enabled: true, transport: udp}",
			want: "invalid transport",
		},
		{
			name: "negative monitor interval",
			src:  "http: {listen: ':1'}\nsettings: {monitor: {interval: -1s}}",
			want: "settings.monitor.interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolveYAML(t, tt.src)
			require.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  listen: 127.0.0.1:9207\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9207", cfg.HTTP.Listen)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "failed to read config file")
}

func resolveGaugeYAML(t *testing.T, src string) (*GaugeConfig, error) {
	t.Helper()

	raw, err := ParseGaugesBytes([]byte(src))
	if err != nil {
		return nil, err
	}
	return ResolveGauges(raw)
}

func TestResolveGauges(t *testing.T) {
	cfg, err := resolveGaugeYAML(t, `
gauges:
  cpu_temp: /sys/class/thermal/thermal_zone0/temp
  battery: /sys/class/power_supply/BAT0/capacity
`)
	require.NoError(t, err)

	require.Equal(t, BusAuto, cfg.Bus)
	require.Equal(t, []bus.Kind{bus.Session, bus.System}, cfg.Bus.Kinds())
	require.Equal(t, DefaultGaugeRefresh, cfg.Refresh)
	require.True(t, cfg.Notify)
	require.Equal(t, []Gauge{
		{Name: "battery", Path: "/sys/class/power_supply/BAT0/capacity"},
		{Name: "cpu_temp", Path: "/sys/class/thermal/thermal_zone0/temp"},
	}, cfg.Gauges)
}

func TestResolveGaugesWatch(t *testing.T) {
	cfg, err := resolveGaugeYAML(t, `
bus: system
watch:
  refresh_secs: 0.25
  notify: false
gauges:
  x: /tmp/x
`)
	require.NoError(t, err)
	require.Equal(t, []bus.Kind{bus.System}, cfg.Bus.Kinds())
	require.Equal(t, 250*time.Millisecond, cfg.Refresh)
	require.False(t, cfg.Notify)

	cfg, err = resolveGaugeYAML(t, "watch: {refresh_secs: 0}\ngauges: {x: /tmp/x}")
	require.NoError(t, err)
	require.Zero(t, cfg.Refresh)
}

func TestResolveGaugesErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"no gauges", "bus: auto", "at least one gauge"},
		{"bad name", "gauges: {cpu-temp: /tmp/x}", `invalid character '-'`},
		{"negative refresh", "watch: {refresh_secs: -1.5}\ngauges: {x: /tmp/x}", "-1.5"},
		{"huge refresh", "watch: {refresh_secs: 1e10}\ngauges: {x: /tmp/x}", "invalid watch.refresh_secs"},
		{"bad bus", "bus: starship\ngauges: {x: /tmp/x}", "invalid bus"},
		{"empty path", "gauges: {x: ''}", "path cannot be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolveGaugeYAML(t, tt.src)
			require.ErrorContains(t, err, tt.want)
		})
	}
}
