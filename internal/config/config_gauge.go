package config

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/haileys/dprom/internal/bus"
	"github.com/haileys/dprom/internal/metric"
)

const (
	DefaultGaugeRefresh = 5 * time.Second
	DefaultGaugeNotify  = true
)

// BusMode selects the bus a producer serves on.
type BusMode string

const (
	// BusAuto tries the session bus, then the system bus
	BusAuto    BusMode = "auto"
	BusSession BusMode = "session"
	BusSystem  BusMode = "system"
)

// Kinds lists the buses to try, in order.
func (m BusMode) Kinds() []bus.Kind {
	switch m {
	case BusSession:
		return []bus.Kind{bus.Session}
	case BusSystem:
		return []bus.Kind{bus.System}
	default:
		return []bus.Kind{bus.Session, bus.System}
	}
}

// GaugeConfig holds the complete file-gauge producer configuration.
type GaugeConfig struct {
	Bus BusMode
	// Refresh is the polling period; zero disables polling.
	Refresh time.Duration
	// Notify re-reads a file as soon as it is written.
	Notify bool
	// Gauges is sorted by name.
	Gauges []Gauge
}

// Gauge maps a metric name onto the file holding its value.
type Gauge struct {
	Name string
	Path string
}

// maxRefreshSecs is the longest refresh interval a time.Duration holds.
const maxRefreshSecs = float64(math.MaxInt64) / float64(time.Second)

// ResolveGauges builds the final file-gauge config from raw, applying defaults
// and validating it.
func ResolveGauges(raw *RawGaugeConfig) (*GaugeConfig, error) {
	cfg := &GaugeConfig{
		Bus:     BusMode(strings.ToLower(raw.Bus)),
		Refresh: DefaultGaugeRefresh,
		Notify:  boolOr(raw.Watch.Notify, DefaultGaugeNotify),
	}

	switch cfg.Bus {
	case "":
		cfg.Bus = BusAuto
	case BusAuto, BusSession, BusSystem:
	default:
		return nil, fmt.Errorf("invalid bus: %s (must be auto, session, or system)", raw.Bus)
	}

	if secs := raw.Watch.RefreshSecs; secs != nil {
		if math.IsNaN(*secs) || math.IsInf(*secs, 0) || *secs < 0 {
			return nil, fmt.Errorf("invalid watch.refresh_secs: %v (must be a non-negative number)", *secs)
		}
		if *secs >= maxRefreshSecs {
			return nil, fmt.Errorf("invalid watch.refresh_secs: %v (must be below %v)", *secs, maxRefreshSecs)
		}
		cfg.Refresh = time.Duration(*secs * float64(time.Second))
	}

	for name, path := range raw.Gauges {
		if err := metric.ValidateName(name); err != nil {
			return nil, fmt.Errorf("invalid gauge: %w", err)
		}
		if path == "" {
			return nil, fmt.Errorf("gauge %q: path cannot be empty", name)
		}
		cfg.Gauges = append(cfg.Gauges, Gauge{Name: name, Path: path})
	}
	slices.SortFunc(cfg.Gauges, func(a, b Gauge) int {
		return strings.Compare(a.Name, b.Name)
	})

	return cfg, nil
}
