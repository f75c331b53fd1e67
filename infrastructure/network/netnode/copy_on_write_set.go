package netnode

import (
	"sync"
	"sync/atomic"
)

// copyOnWriteSet is an insertion-ordered set whose readers never lock.
// Every write publishes a new immutable snapshot, so iterating the result
// of values stays valid while the set keeps changing.
type copyOnWriteSet[T comparable] struct {
	writeLock sync.Mutex
	snapshot  atomic.Pointer[[]T]
}

func newCopyOnWriteSet[T comparable]() *copyOnWriteSet[T] {
	set := &copyOnWriteSet[T]{}
	empty := make([]T, 0)
	set.snapshot.Store(&empty)
	return set
}

// values returns the current snapshot. It must not be modified.
func (s *copyOnWriteSet[T]) values() []T {
	return *s.snapshot.Load()
}

func (s *copyOnWriteSet[T]) len() int {
	return len(s.values())
}

func (s *copyOnWriteSet[T]) contains(value T) bool {
	return indexOf(s.values(), value) >= 0
}

// add appends value unless it's already present, and returns whether it was added.
func (s *copyOnWriteSet[T]) add(value T) bool {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	current := s.values()
	if indexOf(current, value) >= 0 {
		return false
	}
	updated := make([]T, len(current), len(current)+1)
	copy(updated, current)
	updated = append(updated, value)
	s.snapshot.Store(&updated)
	return true
}

// remove drops value from the set, and returns whether it was present.
func (s *copyOnWriteSet[T]) remove(value T) bool {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	current := s.values()
	index := indexOf(current, value)
	if index < 0 {
		return false
	}
	updated := make([]T, 0, len(current)-1)
	updated = append(updated, current[:index]...)
	updated = append(updated, current[index+1:]...)
	s.snapshot.Store(&updated)
	return true
}

func indexOf[T comparable](values []T, value T) int {
	for i, candidate := range values {
		if candidate == value {
			return i
		}
	}
	return -1
}
