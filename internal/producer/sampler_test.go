package producer

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/haileys/dprom/internal/config"
	"github.com/stretchr/testify/require"
)

type update struct {
	name  string
	value float64
}

type recordingSink struct {
	mu      sync.Mutex
	updates []update
}

func (s *recordingSink) SetGauge(name string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, update{name, value})
}

func (s *recordingSink) values(name string) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []float64
	for _, u := range s.updates {
		if u.name == name {
			out = append(out, u.value)
		}
	}
	return out
}

func writeValue(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func runSampler(t *testing.T, cfg *config.GaugeConfig, sink Sink) {
	t.Helper()

	s := NewSampler(cfg, sink, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
}

func TestReadValue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "temp")

	writeValue(t, path, "  41500\n")
	v, err := readValue(path)
	require.NoError(t, err)
	require.Equal(t, 41500.0, v)

	writeValue(t, path, "-0.25")
	v, err = readValue(path)
	require.NoError(t, err)
	require.Equal(t, -0.25, v)

	writeValue(t, path, "warm")
	_, err = readValue(path)
	require.ErrorContains(t, err, "invalid gauge value")

	_, err = readValue(filepath.Join(dir, "missing"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestSamplerPolls(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	writeValue(t, a, "1")
	writeValue(t, b, "2")

	sink := &recordingSink{}
	runSampler(t, &config.GaugeConfig{
		Refresh: 10 * time.Millisecond,
		Gauges:  []config.Gauge{{Name: "a", Path: a}, {Name: "b", Path: b}},
	}, sink)

	require.Eventually(t, func() bool {
		return len(sink.values("a")) == 1 && len(sink.values("b")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	writeValue(t, a, "3")
	require.Eventually(t, func() bool {
		vs := sink.values("a")
		return len(vs) == 2 && vs[1] == 3
	}, 2*time.Second, 5*time.Millisecond)

	// unchanged values are not re-sent
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, []float64{2}, sink.values("b"))
}

func TestSamplerKeepsLastValueOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x")
	writeValue(t, path, "5")

	sink := &recordingSink{}
	runSampler(t, &config.GaugeConfig{
		Refresh: 10 * time.Millisecond,
		Gauges:  []config.Gauge{{Name: "x", Path: path}},
	}, sink)

	require.Eventually(t, func() bool {
		return len(sink.values("x")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	writeValue(t, path, "garbage")
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, []float64{5}, sink.values("x"))

	writeValue(t, path, "6")
	require.Eventually(t, func() bool {
		return len(sink.values("x")) == 2
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, []float64{5, 6}, sink.values("x"))
}

func TestSamplerNotify(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x")
	writeValue(t, path, "1")

	sink := &recordingSink{}
	runSampler(t, &config.GaugeConfig{
		Refresh: 0, // no polling
		Notify:  true,
		Gauges:  []config.Gauge{{Name: "x", Path: path}},
	}, sink)

	require.Eventually(t, func() bool {
		return len(sink.values("x")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	writeValue(t, path, "2")
	require.Eventually(t, func() bool {
		vs := sink.values("x")
		return len(vs) == 2 && vs[1] == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSamplerWithoutPollingOrNotify(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x")
	writeValue(t, path, "1")

	sink := &recordingSink{}
	runSampler(t, &config.GaugeConfig{
		Gauges: []config.Gauge{{Name: "x", Path: path}},
	}, sink)

	require.Eventually(t, func() bool {
		return len(sink.values("x")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	writeValue(t, path, "2")
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, []float64{1}, sink.values("x"))
}
