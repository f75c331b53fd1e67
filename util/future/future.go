// Package future provides a single-assignment result whose completion
// callbacks always run on a designated executor.
package future

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ErrAlreadyCompleted is returned when a Future is completed more than once.
var ErrAlreadyCompleted = errors.New("future is already completed")

// Executor runs tasks. Callbacks of a Future are always run through its Executor.
type Executor interface {
	Execute(task func()) error
}

// Callback is called once with the outcome of a Future.
type Callback[T any] func(result T, err error)

// Future is the eventual outcome of an asynchronous operation. It is
// completed exactly once, either with a result or with an error.
type Future[T any] struct {
	executor Executor

	lock      sync.Mutex
	completed bool
	result    T
	err       error
	callbacks []Callback[T]
	done      chan struct{}
}

// New returns an incomplete Future whose callbacks run on the given executor.
func New[T any](executor Executor) *Future[T] {
	return &Future[T]{
		executor: executor,
		done:     make(chan struct{}),
	}
}

// Set completes the future with the given result.
func (f *Future[T]) Set(result T) error {
	return f.complete(result, nil)
}

// SetError completes the future with the given error.
func (f *Future[T]) SetError(err error) error {
	var zero T
	return f.complete(zero, err)
}

// complete records the outcome and runs the registered callbacks inline.
// It is expected to be called from the executor's own goroutine.
func (f *Future[T]) complete(result T, err error) error {
	f.lock.Lock()
	if f.completed {
		f.lock.Unlock()
		return errors.WithStack(ErrAlreadyCompleted)
	}
	f.completed = true
	f.result = result
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.lock.Unlock()

	for _, callback := range callbacks {
		callback(result, err)
	}
	return nil
}

// AddCallback registers a callback to be called once the future completes.
// If the future is already complete the callback is scheduled on the executor
// rather than being called by the current goroutine. When the executor no
// longer accepts tasks, the outcome is delivered on the current goroutine
// so it is never lost.
func (f *Future[T]) AddCallback(callback Callback[T]) error {
	f.lock.Lock()
	if !f.completed {
		f.callbacks = append(f.callbacks, callback)
		f.lock.Unlock()
		return nil
	}
	result, err := f.result, f.err
	f.lock.Unlock()

	executeErr := f.executor.Execute(func() { callback(result, err) })
	if executeErr != nil {
		callback(result, err)
	}
	return nil
}

// Done returns a channel that's closed once the future completes.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// IsDone returns whether the future has completed.
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Await blocks until the future completes or the context is done.
// It must not be called from the executor's goroutine, since that goroutine
// is the one that completes the future.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		f.lock.Lock()
		defer f.lock.Unlock()
		return f.result, f.err
	case <-ctx.Done():
		var zero T
		return zero, errors.WithStack(ctx.Err())
	}
}
