// Package workerpool implements the bounded, fixed-size worker pool described
// in §4.3: a FIFO queue of nullary tasks guarded by one mutex/condition
// variable, served by N worker goroutines that block on the queue's
// not-empty condition. Shutdown drains whatever is already queued and then
// discards anything submitted afterward.
package workerpool

import (
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Task is a unit of work submitted by a connection handler for one frame.
type Task func()

// Pool is a fixed-size worker pool over a FIFO task queue.
type Pool struct {
	mu           sync.Mutex
	cond         *sync.Cond
	queue        []Task
	shuttingDown bool

	workerCount int
	wg          sync.WaitGroup
	logger      zerolog.Logger

	discarded int64 // tasks Submit()'d after shutdown began
}

// New creates a pool with workerCount workers. Call Start to launch them.
func New(workerCount int, logger zerolog.Logger) *Pool {
	p := &Pool{
		workerCount: workerCount,
		logger:      logger,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches the worker goroutines. Call once, before the first Submit.
func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.shuttingDown {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			// shuttingDown and drained: this worker's done.
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.runTask(task)
	}
}

// runTask executes one task with panic recovery: a task that panics must not
// kill its worker (§7 "Task exception in worker").
func (p *Pool) runTask(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("worker pool: task panicked, worker continues")
		}
	}()
	task()
}

// Submit enqueues a task for asynchronous execution. While the pool is
// shutting down, tasks are silently discarded rather than queued (§4.3).
func (p *Pool) Submit(task Task) {
	p.mu.Lock()
	if p.shuttingDown {
		p.mu.Unlock()
		atomic.AddInt64(&p.discarded, 1)
		return
	}
	p.queue = append(p.queue, task)
	p.mu.Unlock()
	p.cond.Signal()
}

// Stop enters the shutting-down state, wakes every worker so it can drain the
// remaining queue and exit, and blocks until every worker has returned.
// Safe to call once; a second call is a no-op beyond re-waiting.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.shuttingDown = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}

// QueueDepth reports the number of tasks currently waiting (ambient metric).
func (p *Pool) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Discarded reports how many Submit calls were dropped because the pool was
// already shutting down (ambient metric).
func (p *Pool) Discarded() int64 {
	return atomic.LoadInt64(&p.discarded)
}
