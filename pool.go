package taskengine

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srchowdhury/taskengine/internal/telemetry"
)

// DefaultIdleBackoff is the idle back-off applied when a worker finds
// the queue empty (or the pool paused) and no explicit back-off has been
// configured. Zero means "cooperative yield", matching spec.md §3's
// stated default.
const DefaultIdleBackoff = 0

// Pool is a fixed-size worker set plus the shared FIFO queue of ready
// tasks it dispatches them from (spec.md §3/§4.2).
//
// Deliberately not built on per-worker channels: the teacher's
// wpool.go dispatches through a buffered Go channel per pool, but
// spec.md's Non-goals rule out per-worker local queues and its data
// model requires one shared, lock-protected FIFO with a non-blocking
// pop — exactly the loop original_source/src/ThreadPool.cpp implements
// (worker/popTask/sleepOrYield). This Pool is grounded on that loop,
// with the teacher's atomic outstanding-counter and pause/resume
// bookkeeping layered on top.
type Pool struct {
	mu      sync.Mutex
	queue   []*Task
	workers int

	outstanding atomic.Int64
	running     atomic.Bool
	paused      atomic.Bool
	idleBackoff atomic.Int64 // nanoseconds

	wg      sync.WaitGroup
	metrics MetricsPolicy
}

// NewPool constructs a Pool with n workers. n must be >= 1.
func NewPool(n int) (*Pool, error) {
	if n <= 0 {
		return nil, ErrInvalidSize
	}
	p := &Pool{metrics: &AtomicMetrics{}}
	p.running.Store(true)
	p.startWorkers(n)
	return p, nil
}

// NewPoolDefault constructs a Pool sized to the host's reported hardware
// concurrency, per spec.md §4.2.
func NewPoolDefault() *Pool {
	p, _ := NewPool(runtime.NumCPU())
	return p
}

func (p *Pool) startWorkers(n int) {
	p.mu.Lock()
	p.workers = n
	p.mu.Unlock()
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.workerLoop()
	}
}

// Submit enqueues t and returns its result Handle. Submit never blocks
// on worker availability — the queue is unbounded — and is safe for any
// number of concurrent submitters and concurrent workers.
func (p *Pool) Submit(t *Task) (*Handle, error) {
	if !p.running.Load() {
		return nil, ErrPoolClosed
	}
	h, err := t.TakeHandle()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.queue = append(p.queue, t)
	p.mu.Unlock()
	p.outstanding.Add(1)
	telemetry.FromContext(context.Background()).Debug("task submitted",
		telemetry.Uint32("task_id", t.ID()), telemetry.Int("queued", p.Queued()))
	return h, nil
}

// workerLoop is the dequeue-and-invoke loop each worker goroutine runs
// until the pool's running flag clears (spec.md §4.2 "Worker loop").
func (p *Pool) workerLoop() {
	defer p.wg.Done()
	for p.running.Load() {
		task, ok := p.popTask()
		if !ok {
			p.idleBackoffSleep()
			continue
		}
		p.runTask(task)
	}
}

// popTask is the non-blocking try-pop described in spec.md §4.2 step 2:
// acquire the queue lock; if non-empty and not paused, pop the front
// task; otherwise release and report nothing available.
func (p *Pool) popTask() (*Task, bool) {
	if p.paused.Load() {
		return nil, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused.Load() || len(p.queue) == 0 {
		return nil, false
	}
	t := p.queue[0]
	p.queue = p.queue[1:]
	return t, true
}

// runTask invokes the task, recovering any panic so a failing thunk
// never kills the worker — it propagates only into the task's Handle
// (spec.md §4.2 step 3, §7).
func (p *Pool) runTask(t *Task) {
	defer p.outstanding.Add(-1)
	defer p.metrics.IncExecuted()
	closure := t.ToClosure()
	func() {
		defer func() {
			if r := recover(); r != nil {
				telemetry.FromContext(context.Background()).Error("task panicked",
					telemetry.Uint32("task_id", t.ID()), telemetry.Any("panic", r))
			}
		}()
		closure()
	}()
}

// idleBackoffSleep sleeps for the configured idle back-off duration, or
// cooperatively yields the scheduler if none is configured (spec.md
// §3/§4.2 "Idle back-off").
func (p *Pool) idleBackoffSleep() {
	if d := time.Duration(p.idleBackoff.Load()); d > 0 {
		time.Sleep(d)
	} else {
		runtime.Gosched()
	}
}

// SetIdleBackoff configures the worker idle back-off. A zero duration
// means cooperative yield.
func (p *Pool) SetIdleBackoff(d time.Duration) {
	p.idleBackoff.Store(int64(d))
}

// Pause stops workers from dequeuing further tasks; tasks already in
// hand continue to completion.
func (p *Pool) Pause() { p.paused.Store(true) }

// Resume clears Pause.
func (p *Pool) Resume() { p.paused.Store(false) }

// Paused reports whether the pool is currently paused.
func (p *Pool) Paused() bool { return p.paused.Load() }

// waitQuiescent blocks until the pool reaches quiescence: with pause
// false, total outstanding reaches zero; with pause true, only
// in-progress tasks (queue length subtracted from outstanding) reach
// zero, per spec.md §4.2 "Quiescence" — queued tasks may remain while
// paused.
func (p *Pool) waitQuiescent() {
	for {
		if p.paused.Load() {
			if p.Running() == 0 {
				return
			}
		} else if p.TotalOutstanding() == 0 {
			return
		}
		p.idleBackoffSleep()
	}
}

// Reset waits for quiescence, then replaces the worker set with n fresh
// workers. Fails with ErrInvalidSize if n is zero; the pool is left
// unchanged in that case. Reset(n); Reset(n) has the same effect as a
// single Reset(n), per spec.md §8.
func (p *Pool) Reset(n int) error {
	if n <= 0 {
		return ErrInvalidSize
	}
	wasPaused := p.paused.Load()
	p.waitQuiescent()
	p.paused.Store(true)
	p.running.Store(false)
	p.wg.Wait()

	p.running.Store(true)
	p.startWorkers(n)
	p.paused.Store(wasPaused)
	return nil
}

// Close waits for quiescence and stops every worker. No tasks may be in
// flight once Close returns; it is the Go stand-in for the original's
// blocking destructor.
func (p *Pool) Close() {
	p.waitQuiescent()
	p.running.Store(false)
	p.wg.Wait()
}

// TotalOutstanding returns the number of tasks queued plus executing.
func (p *Pool) TotalOutstanding() int64 { return p.outstanding.Load() }

// Queued returns the current queue length.
func (p *Pool) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Running returns the number of tasks currently executing (outstanding
// minus queued), per spec.md §4.2 "Accessors".
func (p *Pool) Running() int64 {
	return p.TotalOutstanding() - int64(p.Queued())
}

// Workers returns the pool's current configured worker count.
func (p *Pool) Workers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}
