package metric

import (
	"context"
	"log/slog"
	"math"
	"sync"
)

// recordBuffer bounds the number of undelivered publish records.
const recordBuffer = 50

// Record is one entry of the merged update stream. A nil Value retracts
// the name from the live view.
type Record struct {
	Name  string
	Token uint64
	Value *Value
}

// Retracted reports whether the record removes its name.
func (r Record) Retracted() bool {
	return r.Value == nil
}

// Registry tracks which registration currently owns each metric name and
// merges the values published by owners into a single update stream.
//
// Ownership is decided by a generation token handed out on Register: the
// latest registration for a name wins, and handles of earlier
// registrations silently stop having any effect.
type Registry struct {
	mu     sync.Mutex
	owners map[string]uint64
	serial uint64
	gone   []Record

	goneReady chan struct{}
	records   chan Record
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		owners:    make(map[string]uint64),
		goneReady: make(chan struct{}, 1),
		records:   make(chan Record, recordBuffer),
	}
}

// Handle is the capability returned from Register. It is bound to one
// (name, token) pair.
type Handle struct {
	registry *Registry
	name     string
	token    uint64
	once     sync.Once
}

// Register makes a fresh registration the owner of name.
func (r *Registry) Register(name string) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.serial == math.MaxUint64 {
		panic("metric: generation token space exhausted")
	}
	r.serial++
	token := r.serial

	if prev, exists := r.owners[name]; exists {
		slog.Debug("metric name re-registered", "name", name, "previous", prev, "token", token)
	}
	r.owners[name] = token

	return &Handle{
		registry: r,
		name:     name,
		token:    token,
	}
}

// Name returns the metric name the handle is bound to.
func (h *Handle) Name() string {
	return h.name
}

// Token returns the generation token of the registration.
func (h *Handle) Token() uint64 {
	return h.token
}

// Publish enqueues value for the handle's name if the handle still owns
// it. It blocks while the update stream is full and returns ctx.Err() if
// ctx is done first.
func (h *Handle) Publish(ctx context.Context, value Value) error {
	if !h.registry.owns(h.name, h.token) {
		return nil
	}

	rec := Record{Name: h.name, Token: h.token, Value: &value}

	select {
	case h.registry.records <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the registration. If the handle still owns its name the
// name is retracted from the live view; otherwise Close does nothing. Close
// never blocks and only has an effect the first time it is called.
func (h *Handle) Close() {
	h.once.Do(func() {
		h.registry.release(h.name, h.token)
	})
}

func (r *Registry) owns(name string, token uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.owners[name] == token
}

func (r *Registry) release(name string, token uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.owners[name] != token {
		return
	}
	delete(r.owners, name)
	r.gone = append(r.gone, Record{Name: name, Token: token})

	select {
	case r.goneReady <- struct{}{}:
	default:
	}
}

// Next returns the next record of the merged update stream. Retractions
// and publishes travel on separate queues; there is no ordering between
// them, Record.Token lets consumers discard a publish that a retraction
// has overtaken. Next is meant for a single consumer.
func (r *Registry) Next(ctx context.Context) (Record, error) {
	for {
		if rec, ok := r.popGone(); ok {
			return rec, nil
		}

		select {
		case rec := <-r.records:
			return rec, nil
		case <-r.goneReady:
		case <-ctx.Done():
			return Record{}, ctx.Err()
		}
	}
}

func (r *Registry) popGone() (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.gone) == 0 {
		return Record{}, false
	}
	rec := r.gone[0]
	r.gone[0] = Record{}
	r.gone = r.gone[1:]
	return rec, true
}
