package metric

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
)

// Source yields update records, typically a *Registry.
type Source interface {
	Next(ctx context.Context) (Record, error)
}

// Sample is one row of the live view.
type Sample struct {
	Name  string
	Value Value
}

type liveEntry struct {
	token uint64
	value Value
}

// Live folds the update stream into the current name -> value table.
type Live struct {
	mu      sync.RWMutex
	entries map[string]liveEntry

	// retired holds the newest retracted token per name; publishes with an
	// older or equal token arrived late and are dropped.
	retired map[string]uint64
}

// NewLive creates an empty live view.
func NewLive() *Live {
	return &Live{
		entries: make(map[string]liveEntry),
		retired: make(map[string]uint64),
	}
}

// Run applies records from src until ctx is done or src fails.
func (l *Live) Run(ctx context.Context, src Source) error {
	for {
		rec, err := src.Next(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				slog.Warn("metric stream stopped, metrics no longer live", "error", err)
			}
			return err
		}
		l.Apply(rec)
	}
}

// Apply folds one record into the view.
func (l *Live) Apply(rec Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, exists := l.entries[rec.Name]

	if rec.Retracted() {
		if rec.Token > l.retired[rec.Name] {
			l.retired[rec.Name] = rec.Token
		}
		if exists && cur.token <= rec.Token {
			delete(l.entries, rec.Name)
		}
		return
	}

	if rec.Token <= l.retired[rec.Name] {
		return
	}
	if exists && cur.token > rec.Token {
		return
	}
	l.entries[rec.Name] = liveEntry{token: rec.Token, value: *rec.Value}
}

// Get returns the current value of name.
func (l *Live) Get(name string) (Value, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.entries[name]
	return e.value, ok
}

// Len returns the number of live metrics.
func (l *Live) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.entries)
}

// Snapshot returns the live view sorted by name.
func (l *Live) Snapshot() []Sample {
	l.mu.RLock()
	samples := make([]Sample, 0, len(l.entries))
	for name, e := range l.entries {
		samples = append(samples, Sample{Name: name, Value: e.value})
	}
	l.mu.RUnlock()

	sort.Slice(samples, func(i, j int) bool {
		return samples[i].Name < samples[j].Name
	})
	return samples
}

// Stats reports the size of the live view for the resource monitor.
func (l *Live) Stats() []slog.Attr {
	return []slog.Attr{slog.Int("live", l.Len())}
}
