package bus

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrClosed is returned by streams and calls on a closed connection.
var ErrClosed = errors.New("bus connection closed")

// Stream is an unbounded queue of notifications. Producers never block;
// items are buffered from the moment the stream is created until they are
// consumed, which is what lets a subscriber open the stream, take a
// snapshot, and then replay everything that happened in between.
type Stream[T any] struct {
	mu    sync.Mutex
	items []T
	ended bool
	err   error
	ready chan struct{}

	closeOnce sync.Once
	onClose   func()
}

// NewStream creates an open stream. onClose, if non-nil, runs once when
// the consumer closes the stream.
func NewStream[T any](onClose func()) *Stream[T] {
	return &Stream[T]{
		ready:   make(chan struct{}, 1),
		onClose: onClose,
	}
}

// Push appends v. It is a no-op once the stream has ended.
func (s *Stream[T]) Push(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return
	}
	s.items = append(s.items, v)
	s.notify()
}

// End terminates the stream after the buffered items. A nil err ends it
// cleanly and Next reports io.EOF.
func (s *Stream[T]) End(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return
	}
	if err == nil {
		err = io.EOF
	}
	s.ended = true
	s.err = err
	s.notify()
}

func (s *Stream[T]) notify() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// Next returns the next item, blocking until one is available, the stream
// ends, or ctx is done.
func (s *Stream[T]) Next(ctx context.Context) (T, error) {
	var zero T

	for {
		s.mu.Lock()
		if len(s.items) > 0 {
			v := s.items[0]
			s.items[0] = zero
			s.items = s.items[1:]
			s.mu.Unlock()
			return v, nil
		}
		if s.ended {
			err := s.err
			s.mu.Unlock()
			return zero, err
		}
		s.mu.Unlock()

		select {
		case <-s.ready:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close unsubscribes and drops buffered items.
func (s *Stream[T]) Close() {
	s.closeOnce.Do(func() {
		if s.onClose != nil {
			s.onClose()
		}

		s.mu.Lock()
		s.items = nil
		s.mu.Unlock()

		s.End(ErrClosed)
	})
}
