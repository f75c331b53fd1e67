// Package workerpool implements a bounded pool of goroutines for
// operations that may block for a long time, such as dialing a peer
// through a proxy or writing to a slow connection.
package workerpool

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrPoolSaturated is returned when every worker is busy and the queue is full.
	ErrPoolSaturated = errors.New("worker pool is saturated")

	// ErrPoolStopped is returned when submitting a task to a stopped pool.
	ErrPoolStopped = errors.New("worker pool is stopped")
)

// Config defines the sizing of a Pool.
type Config struct {
	// Name is used for naming worker goroutines in logs.
	Name string

	// MinWorkers are started with the pool and never expire.
	MinWorkers int

	// MaxWorkers bounds the number of concurrently running tasks.
	MaxWorkers int

	// IdleTimeout is how long a worker above MinWorkers waits for a task before exiting.
	IdleTimeout time.Duration

	// QueueSize is the number of tasks that may wait for a worker once
	// MaxWorkers are busy. Defaults to MaxWorkers.
	QueueSize int
}

type task struct {
	name string
	run  func()
}

// Pool runs submitted tasks on a bounded set of worker goroutines.
type Pool struct {
	cfg   Config
	tasks chan task

	lock        sync.Mutex
	workerCount int
	idleCount   int
	isStarted   bool
	isStopped   bool

	workersWaitGroup sync.WaitGroup
}

// New creates a new Pool. Call Start to spawn its core workers.
func New(cfg Config) (*Pool, error) {
	if cfg.MaxWorkers <= 0 {
		return nil, errors.Errorf("MaxWorkers must be positive, got %d", cfg.MaxWorkers)
	}
	if cfg.MinWorkers < 0 || cfg.MinWorkers > cfg.MaxWorkers {
		return nil, errors.Errorf("MinWorkers must be between 0 and MaxWorkers (%d), got %d",
			cfg.MaxWorkers, cfg.MinWorkers)
	}
	if cfg.IdleTimeout <= 0 {
		return nil, errors.Errorf("IdleTimeout must be positive, got %s", cfg.IdleTimeout)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.MaxWorkers
	}
	return &Pool{
		cfg:   cfg,
		tasks: make(chan task, cfg.QueueSize),
	}, nil
}

// Start spawns the core workers of the pool
func (p *Pool) Start() {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.isStarted || p.isStopped {
		return
	}
	p.isStarted = true
	for i := 0; i < p.cfg.MinWorkers; i++ {
		p.spawnWorker(nil)
	}
	log.Debugf("Worker pool %s started with %d workers (max %d)", p.cfg.Name, p.cfg.MinWorkers, p.cfg.MaxWorkers)
}

// Submit schedules the given function on the pool. It never blocks: when all
// MaxWorkers are busy the task is queued, and when the queue is full as well
// ErrPoolSaturated is returned.
func (p *Pool) Submit(name string, run func()) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.isStopped || !p.isStarted {
		return errors.Wrapf(ErrPoolStopped, "cannot submit %s to %s", name, p.cfg.Name)
	}

	t := task{name: name, run: run}
	if p.idleCount > 0 && p.enqueue(t) {
		return nil
	}
	if p.workerCount < p.cfg.MaxWorkers {
		p.spawnWorker(&t)
		return nil
	}
	if p.enqueue(t) {
		return nil
	}
	return errors.Wrapf(ErrPoolSaturated, "cannot submit %s to %s: %d workers busy and %d tasks queued",
		name, p.cfg.Name, p.workerCount, len(p.tasks))
}

// enqueue queues t without blocking. Every queued task is counted against
// idleCount, so an idle worker is never promised to two tasks.
// enqueue must be called while holding p.lock
func (p *Pool) enqueue(t task) bool {
	select {
	case p.tasks <- t:
		p.idleCount--
		return true
	default:
		return false
	}
}

// Stop makes the pool refuse new tasks. Queued and running tasks are not
// cancelled; workers exit once the queue is drained.
func (p *Pool) Stop() {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.isStopped {
		return
	}
	p.isStopped = true
	close(p.tasks)
}

// Wait blocks until every worker has exited. It should only be called after Stop.
func (p *Pool) Wait() {
	p.workersWaitGroup.Wait()
}

// WorkerCount returns the number of live workers.
func (p *Pool) WorkerCount() int {
	p.lock.Lock()
	defer p.lock.Unlock()

	return p.workerCount
}

// spawnWorker must be called while holding p.lock
func (p *Pool) spawnWorker(firstTask *task) {
	p.workerCount++
	p.workersWaitGroup.Add(1)
	spawn(fmt.Sprintf("%s-worker", p.cfg.Name), func() {
		defer p.workersWaitGroup.Done()
		p.work(firstTask)
	})
}

func (p *Pool) work(firstTask *task) {
	if firstTask != nil {
		p.run(*firstTask)
	}

	idleTimer := time.NewTimer(p.cfg.IdleTimeout)
	defer idleTimer.Stop()

	for {
		p.markIdle()
		t, ok := p.nextTask(idleTimer)
		if !ok {
			return
		}
		p.run(t)
	}
}

// nextTask waits for a queued task. It returns false when the worker should
// exit, either because the pool is stopped or because the worker expired.
func (p *Pool) nextTask(idleTimer *time.Timer) (task, bool) {
	if !idleTimer.Stop() {
		select {
		case <-idleTimer.C:
		default:
		}
	}
	idleTimer.Reset(p.cfg.IdleTimeout)

	for {
		select {
		case t, ok := <-p.tasks:
			if !ok {
				p.exitWorker()
				return task{}, false
			}
			return t, true

		case <-idleTimer.C:
			if p.expireIfRedundant() {
				return task{}, false
			}
			idleTimer.Reset(p.cfg.IdleTimeout)
		}
	}
}

func (p *Pool) run(t task) {
	log.Tracef("Worker of %s running %s", p.cfg.Name, t.name)
	t.run()
}

// markIdle makes the worker available to Submit. idleCount is the number of
// idle workers minus the number of queued tasks, so a worker that picks up a
// queued task was already accounted for when the task was queued.
func (p *Pool) markIdle() {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.idleCount++
}

// expireIfRedundant removes an idle worker when there are more than
// MinWorkers and no queued task is waiting for it.
func (p *Pool) expireIfRedundant() bool {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.workerCount <= p.cfg.MinWorkers || p.idleCount <= 0 {
		return false
	}
	p.workerCount--
	p.idleCount--
	log.Tracef("Idle worker of %s expired, %d workers left", p.cfg.Name, p.workerCount)
	return true
}

func (p *Pool) exitWorker() {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.workerCount--
}
