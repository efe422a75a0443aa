// Package linger ties the lifetime of a background goroutine to a handle.
//
// A lingered task starts running immediately and keeps running until it
// returns on its own or its handle is stopped. Stopping cancels the
// context passed to the task; the task observes it at its next blocking
// call, so cancellation is cooperative and not instantaneous.
package linger

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Linger is the handle of a running task producing a T.
type Linger[T any] struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	result T
	panic  *Panic
}

// Panic carries a value recovered from a task along with the stack at the
// point of the panic.
type Panic struct {
	Value any
	Stack []byte
}

func (p *Panic) Error() string {
	return fmt.Sprintf("lingered task panicked: %v", p.Value)
}

// Go starts work in a new goroutine and returns its handle. The context
// given to work is derived from ctx and is cancelled when the handle is
// stopped or ctx itself is done.
func Go[T any](ctx context.Context, work func(ctx context.Context) T) *Linger[T] {
	ctx, cancel := context.WithCancel(ctx)

	l := &Linger[T]{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go l.run(ctx, work)

	return l
}

func (l *Linger[T]) run(ctx context.Context, work func(ctx context.Context) T) {
	defer close(l.done)
	defer l.cancel()
	defer func() {
		if v := recover(); v != nil {
			l.panic = &Panic{Value: v, Stack: debug.Stack()}
			slog.Error("lingered task panicked",
				"panic", v,
				"stack", string(l.panic.Stack))
		}
	}()

	l.result = work(ctx)
}

// Stop discards the handle, cancelling the task if it is still running.
// It does not wait for the task to return. Stop may be called any number
// of times.
func (l *Linger[T]) Stop() {
	l.once.Do(l.cancel)
}

// Done is closed once the task has returned.
func (l *Linger[T]) Done() <-chan struct{} {
	return l.done
}

// Wait blocks until the task returns and yields its result. If the task
// panicked, Wait panics with the recovered *Panic.
func (l *Linger[T]) Wait() T {
	<-l.done
	if l.panic != nil {
		panic(l.panic)
	}
	return l.result
}
