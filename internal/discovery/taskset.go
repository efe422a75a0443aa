package discovery

import (
	"context"

	"github.com/haileys/dprom/internal/linger"
)

// taskSet keeps one lingered task per key of a changing set. Removing or
// replacing a key stops its task. It is owned by a single goroutine.
type taskSet[K comparable] struct {
	tasks map[K]*linger.Linger[error]
	start func(ctx context.Context, key K) error
}

func newTaskSet[K comparable](start func(ctx context.Context, key K) error) *taskSet[K] {
	return &taskSet[K]{
		tasks: make(map[K]*linger.Linger[error]),
		start: start,
	}
}

func (s *taskSet[K]) spawn(ctx context.Context, key K) *linger.Linger[error] {
	return linger.Go(ctx, func(ctx context.Context) error {
		return s.start(ctx, key)
	})
}

// add starts a task for key, stopping any task already tracked for it.
func (s *taskSet[K]) add(ctx context.Context, key K) {
	if prev, ok := s.tasks[key]; ok {
		prev.Stop()
	}
	s.tasks[key] = s.spawn(ctx, key)
}

// remove stops and forgets the task for key.
func (s *taskSet[K]) remove(key K) {
	if task, ok := s.tasks[key]; ok {
		task.Stop()
		delete(s.tasks, key)
	}
}

// replace makes keys the tracked set: tasks of retained keys keep running,
// new keys get a fresh task, and keys no longer present are stopped.
func (s *taskSet[K]) replace(ctx context.Context, keys []K) {
	next := make(map[K]*linger.Linger[error], len(keys))

	for _, key := range keys {
		if _, dup := next[key]; dup {
			continue
		}
		if task, ok := s.tasks[key]; ok {
			next[key] = task
			delete(s.tasks, key)
		} else {
			next[key] = s.spawn(ctx, key)
		}
	}

	for _, task := range s.tasks {
		task.Stop()
	}
	s.tasks = next
}

func (s *taskSet[K]) stopAll() {
	for key, task := range s.tasks {
		task.Stop()
		delete(s.tasks, key)
	}
}

func (s *taskSet[K]) len() int {
	return len(s.tasks)
}
