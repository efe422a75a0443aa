// Package monitor periodically logs process resource usage alongside
// the counts reported by dprom's subsystems.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// StatsSource reports its own counters for the periodic log line.
type StatsSource interface {
	Stats() []slog.Attr
}

// Monitor tracks process resource usage and subsystem counts.
type Monitor struct {
	interval time.Duration
	logger   *slog.Logger
	sources  []StatsSource
	wg       sync.WaitGroup

	// nil when the process handle is unavailable
	proc *process.Process
}

// New creates a monitor logging every interval.
func New(interval time.Duration, logger *slog.Logger, sources ...StatsSource) *Monitor {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		logger.Warn("failed to get process handle, cpu usage not reported", "error", err)
		proc = nil
	}

	return &Monitor{
		interval: interval,
		logger:   logger,
		sources:  sources,
		proc:     proc,
	}
}

// Run starts the monitoring loop in a background goroutine. It stops
// when ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.wg.Go(func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.collect(ctx)

		for {
			select {
			case <-ctx.Done():
				m.logger.Debug("monitor stopped")
				return
			case <-ticker.C:
				m.collect(ctx)
			}
		}
	})
}

// Wait blocks until the monitor goroutine exits.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

func (m *Monitor) collect(ctx context.Context) {
	attrs := m.resourceAttrs()
	for _, src := range m.sources {
		attrs = append(attrs, src.Stats()...)
	}

	m.logger.LogAttrs(ctx, slog.LevelInfo, "resource", attrs...)
}

// resourceAttrs reads cpu and memory usage of the process.
func (m *Monitor) resourceAttrs() []slog.Attr {
	var attrs []slog.Attr

	if m.proc != nil {
		cpu, err := m.proc.CPUPercent()
		if err != nil {
			m.logger.Warn("failed to get CPU percent", "error", err)
		} else {
			attrs = append(attrs, slog.String("cpu", fmt.Sprintf("%.2f%%", cpu)))
		}

		if mem, err := m.proc.MemoryInfo(); err == nil {
			attrs = append(attrs, slog.String("rss", fmt.Sprintf("%.2fMB", mb(mem.RSS))))
		}
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return append(attrs,
		slog.Int("gor", runtime.NumGoroutine()),
		slog.String("heap", fmt.Sprintf("%.2fMB", mb(ms.HeapAlloc))),
		slog.Uint64("gc", uint64(ms.NumGC)),
	)
}

func mb(b uint64) float64 {
	return float64(b) / (1024 * 1024)
}
