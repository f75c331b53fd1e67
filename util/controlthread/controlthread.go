package controlthread

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// ErrStopped indicates that a task was submitted after Stop.
var ErrStopped = errors.New("control thread is stopped")

// ControlThread executes submitted tasks one after the other on a single
// goroutine, in submission order. Every task observes the effects of all
// tasks submitted before it.
type ControlThread struct {
	name string

	queue     []func()
	queueLock sync.Mutex
	wakeUp    chan struct{}

	// closed and queueLock protect us from accepting tasks after Stop.
	// Tasks queued before Stop still run.
	closed bool

	isStarted   uint32
	goroutineID uint64 // atomic
	done        chan struct{}
}

// New creates a new ControlThread. Call Start to begin executing tasks.
func New(name string) *ControlThread {
	return &ControlThread{
		name:   name,
		wakeUp: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Start spawns the goroutine that runs the tasks. Calling Start more than once
// does nothing.
func (ct *ControlThread) Start() {
	ct.queueLock.Lock()
	defer ct.queueLock.Unlock()

	if ct.closed || !atomic.CompareAndSwapUint32(&ct.isStarted, 0, 1) {
		return
	}
	spawn(ct.name, ct.loop)
}

// Execute queues the given task. It never blocks, and may be called
// from any goroutine including the control thread itself.
func (ct *ControlThread) Execute(task func()) error {
	ct.queueLock.Lock()
	defer ct.queueLock.Unlock()

	if ct.closed {
		return errors.Wrapf(ErrStopped, "cannot execute task on '%s'", ct.name)
	}
	ct.queue = append(ct.queue, task)

	select {
	case ct.wakeUp <- struct{}{}:
	default:
	}
	return nil
}

// IsCurrent returns whether the calling goroutine is the control thread.
func (ct *ControlThread) IsCurrent() bool {
	id := atomic.LoadUint64(&ct.goroutineID)
	return id != 0 && id == currentGoroutineID()
}

// Stop makes the ControlThread refuse new tasks. Tasks that were already
// queued are still executed, after which the goroutine exits and Done is closed.
func (ct *ControlThread) Stop() {
	ct.queueLock.Lock()
	defer ct.queueLock.Unlock()

	if ct.closed {
		return
	}
	ct.closed = true

	if atomic.LoadUint32(&ct.isStarted) == 0 {
		close(ct.done)
		return
	}

	select {
	case ct.wakeUp <- struct{}{}:
	default:
	}
}

// Done returns a channel that's closed once the control thread has exited.
func (ct *ControlThread) Done() <-chan struct{} {
	return ct.done
}

func (ct *ControlThread) loop() {
	defer close(ct.done)

	atomic.StoreUint64(&ct.goroutineID, currentGoroutineID())
	defer atomic.StoreUint64(&ct.goroutineID, 0)

	for {
		tasks, closed := ct.takeQueued()
		for _, task := range tasks {
			task()
		}
		if closed && len(tasks) == 0 {
			return
		}
		if len(tasks) == 0 {
			<-ct.wakeUp
		}
	}
}

func (ct *ControlThread) takeQueued() ([]func(), bool) {
	ct.queueLock.Lock()
	defer ct.queueLock.Unlock()

	tasks := ct.queue
	ct.queue = nil
	return tasks, ct.closed
}
