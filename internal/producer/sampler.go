package producer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/haileys/dprom/internal/config"
	"github.com/haileys/dprom/internal/logging"
)

// Sink receives gauge values as they change.
type Sink interface {
	SetGauge(name string, value float64)
}

// Sampler reads gauge values from files, on a timer and, optionally, when
// a file is written. Read errors are logged and the last good value kept.
type Sampler struct {
	gauges  []config.Gauge
	refresh time.Duration
	notify  bool
	sink    Sink
	logger  *slog.Logger

	// owned by the Run goroutine
	last map[string]float64
}

// NewSampler creates a sampler feeding sink.
func NewSampler(cfg *config.GaugeConfig, sink Sink, logger *slog.Logger) *Sampler {
	return &Sampler{
		gauges:  cfg.Gauges,
		refresh: cfg.Refresh,
		notify:  cfg.Notify,
		sink:    sink,
		logger:  logger,
		last:    make(map[string]float64),
	}
}

// Run samples every gauge once, then keeps sampling until ctx is done.
func (s *Sampler) Run(ctx context.Context) error {
	var events <-chan fsnotify.Event
	var watchErrors <-chan error

	if s.notify {
		watcher, err := s.newWatcher()
		if err != nil {
			return err
		}
		defer watcher.Close()

		events = watcher.Events
		watchErrors = watcher.Errors
	}

	var tick <-chan time.Time
	if s.refresh > 0 {
		ticker := time.NewTicker(s.refresh)
		defer ticker.Stop()
		tick = ticker.C
	}

	s.sampleAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-tick:
			s.sampleAll(ctx)

		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("file watcher closed")
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			for _, g := range s.gauges {
				if filepath.Clean(g.Path) == filepath.Clean(ev.Name) {
					s.sample(ctx, g)
				}
			}

		case err, ok := <-watchErrors:
			if !ok {
				return fmt.Errorf("file watcher closed")
			}
			s.logger.Warn("file watcher error", "error", err)
		}
	}
}

// newWatcher watches the directories holding the gauge files, so files
// replaced by rename are still seen.
func (s *Sampler) newWatcher() (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	dirs := make(map[string]bool)
	for _, g := range s.gauges {
		dir := filepath.Dir(filepath.Clean(g.Path))
		if dirs[dir] {
			continue
		}
		dirs[dir] = true

		if err := watcher.Add(dir); err != nil {
			// polling still covers it
			s.logger.Warn("cannot watch directory", "dir", dir, "error", err)
		}
	}

	return watcher, nil
}

func (s *Sampler) sampleAll(ctx context.Context) {
	for _, g := range s.gauges {
		s.sample(ctx, g)
	}
}

func (s *Sampler) sample(ctx context.Context, g config.Gauge) {
	value, err := readValue(g.Path)
	if err != nil {
		s.logger.Error("error reading file", "gauge", g.Name, "path", g.Path, "error", err)
		return
	}

	if last, ok := s.last[g.Name]; ok && last == value {
		return
	}
	s.last[g.Name] = value

	logging.Trace(ctx, s.logger, "gauge changed", "gauge", g.Name, "value", value)
	s.sink.SetGauge(g.Name, value)
}

// readValue parses the whitespace-trimmed file content as a float.
func readValue(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid gauge value in %s: %w", path, err)
	}
	return value, nil
}
