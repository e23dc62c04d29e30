package pagekit

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/docview/pagekit/internal/pqueue"
)

// TaskEventKind labels worker pool notifications.
type TaskEventKind string

const (
	TaskEventQueued   TaskEventKind = "queued"
	TaskEventStarted  TaskEventKind = "started"
	TaskEventFinished TaskEventKind = "finished"
	TaskEventCanceled TaskEventKind = "canceled"
)

// TaskEvent describes a task state transition together with a snapshot of
// the pool counters at the time of the transition. Events are delivered on a
// dedicated goroutine; callers must not assume delivery on the submitting
// goroutine, nor that delivery happened before the triggering call returned.
type TaskEvent struct {
	Kind    TaskEventKind
	Task    *Task
	Queued  int
	Running int
}

// PoolConfig defines the configuration for a WorkerPool.
type PoolConfig struct {
	// MaxWorkers is the number of worker goroutines. Defaults to the number
	// of CPUs.
	MaxWorkers int
	// Logger is the logger used for pool events.
	Logger Logger
	// Notify, if set, receives task lifecycle events. Delivery is best
	// effort: events are dropped rather than blocking the pool.
	Notify func(TaskEvent)
}

// WorkerPool runs tasks on a bounded set of worker goroutines. Queued tasks
// are picked up in priority order, FIFO within equal priority. Cancellation
// only succeeds while a task is still queued; running tasks always complete.
type WorkerPool struct {
	mu    sync.Mutex
	cond  *sync.Cond
	queue *pqueue.Queue
	items map[string]*pqueue.Item
	tasks map[string]*Task

	maxWorkers     int
	liveWorkers    int
	running        int
	totalSubmitted uint64
	totalCompleted uint64
	stopped        bool
	waiters        []poolWaiter

	workersDone sync.WaitGroup
	events      chan TaskEvent
	eventsDone  chan struct{}

	log Logger
}

// NewWorkerPool creates a pool and starts its workers.
func NewWorkerPool(cfg PoolConfig) *WorkerPool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	l := cfg.Logger
	if l == nil {
		l = NewFmtLogger()
	}
	p := &WorkerPool{
		queue:      pqueue.New(),
		items:      make(map[string]*pqueue.Item),
		tasks:      make(map[string]*Task),
		maxWorkers: cfg.MaxWorkers,
		log:        l,
	}
	p.cond = sync.NewCond(&p.mu)
	if cfg.Notify != nil {
		p.events = make(chan TaskEvent, 256)
		p.eventsDone = make(chan struct{})
		go func() {
			defer close(p.eventsDone)
			for ev := range p.events {
				cfg.Notify(ev)
			}
		}()
	}
	p.mu.Lock()
	p.spawnLocked(cfg.MaxWorkers)
	p.mu.Unlock()
	l.Infof("worker pool started: workers=%d", cfg.MaxWorkers)
	return p
}

func (p *WorkerPool) spawnLocked(n int) {
	for i := 0; i < n; i++ {
		p.liveWorkers++
		p.workersDone.Add(1)
		go p.worker()
	}
}

func (p *WorkerPool) worker() {
	defer p.workersDone.Done()
	p.mu.Lock()
	for {
		for p.queue.Len() == 0 && !p.stopped && p.liveWorkers <= p.maxWorkers {
			p.cond.Wait()
		}
		if p.liveWorkers > p.maxWorkers || (p.stopped && p.queue.Len() == 0) {
			p.liveWorkers--
			p.mu.Unlock()
			return
		}
		it := p.queue.Pop()
		t := it.Value.(*Task)
		delete(p.items, t.id)
		if !t.tryStart() {
			continue // canceled between queue removal and pickup
		}
		p.running++
		p.emitLocked(TaskEventStarted, t)
		p.mu.Unlock()

		err := p.runBody(t)
		t.finish(err)

		p.mu.Lock()
		p.running--
		p.totalCompleted++
		p.emitLocked(TaskEventFinished, t)
		p.wakeWaitersLocked()
	}
}

// runBody executes the task function, converting panics into errors so a
// misbehaving task can never take down a worker goroutine.
func (p *WorkerPool) runBody(t *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pagekit: task panic: %v", r)
			p.log.Errorf("task %q (%s) panicked: %v\n%s", t.name, t.id, r, debug.Stack())
		}
	}()
	if t.fn == nil {
		return nil
	}
	if err := t.fn(); err != nil {
		p.log.Warnf("task %q (%s) failed: %v", t.name, t.id, err)
		return err
	}
	return nil
}

// Submit enqueues a function for execution and returns its task handle.
// The pool owns the task until it reaches a terminal state. There are no
// retries at this layer; retry, if desired, is the caller's responsibility.
func (p *WorkerPool) Submit(fn func() error, opts ...TaskOption) (*Task, error) {
	var o taskOptions
	for _, opt := range opts {
		opt(&o)
	}
	t := newTask(fn, o.name, o.priority)
	if o.userData != nil {
		t.userData = o.userData
	}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil, ErrPoolStopped
	}
	p.tasks[t.id] = t
	p.items[t.id] = p.queue.Push(t, int64(t.priority), t.enqueuedAt)
	p.totalSubmitted++
	p.emitLocked(TaskEventQueued, t)
	p.cond.Signal()
	p.mu.Unlock()

	p.log.Debugf("submitted task %q (%s) priority=%s", t.name, t.id, t.priority)
	return t, nil
}

// Cancel cancels the task if it is still queued. Once running, cancellation
// is cooperative only: the body is not preempted and the task finishes
// normally.
func (p *WorkerPool) Cancel(t *Task) bool {
	if t == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelLocked(t)
}

// CancelByID cancels a tracked task by its ID if it is still queued.
func (p *WorkerPool) CancelByID(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tasks[id]
	if !ok {
		return false
	}
	return p.cancelLocked(t)
}

// CancelAllQueued cancels every queued task and returns how many were
// canceled. Running tasks are unaffected.
func (p *WorkerPool) CancelAllQueued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, it := range p.items {
		if p.cancelLocked(it.Value.(*Task)) {
			n++
		}
	}
	if n > 0 {
		p.log.Debugf("canceled %d queued tasks", n)
	}
	return n
}

func (p *WorkerPool) cancelLocked(t *Task) bool {
	if !t.tryCancel() {
		return false
	}
	if it, ok := p.items[t.id]; ok {
		p.queue.Remove(it)
		delete(p.items, t.id)
	}
	p.totalCompleted++
	p.emitLocked(TaskEventCanceled, t)
	p.wakeWaitersLocked()
	return true
}

// poolWaiter is a WaitForDone registration. The target is the submission
// count snapshotted at the call, so tasks submitted afterwards never gate
// the wakeup.
type poolWaiter struct {
	target uint64
	ch     chan struct{}
}

// WaitForDone blocks until every task submitted before the call has reached
// a terminal state, or the timeout elapses. Tasks submitted while waiting do
// not delay the return. A non-positive timeout waits forever. Returns true
// if the watched tasks all drained.
func (p *WorkerPool) WaitForDone(timeout time.Duration) bool {
	p.mu.Lock()
	target := p.totalSubmitted
	if p.totalCompleted >= target {
		p.mu.Unlock()
		return true
	}
	ch := make(chan struct{})
	p.waiters = append(p.waiters, poolWaiter{target: target, ch: ch})
	p.mu.Unlock()

	if timeout <= 0 {
		<-ch
		return true
	}
	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		p.log.Warnf("waitForDone: timeout after %s", timeout)
		return false
	}
}

func (p *WorkerPool) wakeWaitersLocked() {
	kept := p.waiters[:0]
	for _, w := range p.waiters {
		if p.totalCompleted >= w.target {
			close(w.ch)
		} else {
			kept = append(kept, w)
		}
	}
	p.waiters = kept
}

// Stop cancels all queued tasks, waits for running tasks to finish, and
// shuts the workers down. The pool rejects submissions afterwards.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		p.log.Warnf("worker pool already stopped; ignoring Stop()")
		return
	}
	for _, it := range p.items {
		p.cancelLocked(it.Value.(*Task))
	}
	p.stopped = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.workersDone.Wait()
	if p.events != nil {
		close(p.events)
		<-p.eventsDone
	}
	p.log.Infof("worker pool stopped")
}

// SetMaxWorkers resizes the worker set. Shrinking takes effect as workers
// become idle; running tasks are never interrupted.
func (p *WorkerPool) SetMaxWorkers(n int) {
	if n < 1 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || n == p.maxWorkers {
		return
	}
	p.maxWorkers = n
	if n > p.liveWorkers {
		p.spawnLocked(n - p.liveWorkers)
	}
	p.cond.Broadcast()
	p.log.Infof("worker pool resized: workers=%d", n)
}

// MaxWorkers returns the configured worker count.
func (p *WorkerPool) MaxWorkers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxWorkers
}

// QueuedCount returns the number of tasks waiting for a worker.
func (p *WorkerPool) QueuedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}

// RunningCount returns the number of tasks currently executing.
func (p *WorkerPool) RunningCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// TotalSubmitted returns the number of tasks ever submitted.
func (p *WorkerPool) TotalSubmitted() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalSubmitted
}

// TotalCompleted returns the number of tasks that reached a terminal state.
func (p *WorkerPool) TotalCompleted() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalCompleted
}

// TaskByID returns a tracked task, or nil if unknown or already cleared.
func (p *WorkerPool) TaskByID(id string) *Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tasks[id]
}

// TasksByState returns all tracked tasks currently in the given state.
func (p *WorkerPool) TasksByState(s TaskState) []*Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*Task
	for _, t := range p.tasks {
		if t.State() == s {
			out = append(out, t)
		}
	}
	return out
}

// ClearCompleted drops terminal tasks from internal tracking and returns how
// many were dropped. Helps bound memory when many short tasks are run.
func (p *WorkerPool) ClearCompleted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for id, t := range p.tasks {
		if t.State().Terminal() {
			delete(p.tasks, id)
			n++
		}
	}
	return n
}

func (p *WorkerPool) emitLocked(kind TaskEventKind, t *Task) {
	if p.events == nil {
		return
	}
	ev := TaskEvent{Kind: kind, Task: t, Queued: p.queue.Len(), Running: p.running}
	select {
	case p.events <- ev:
	default:
		p.log.Debugf("dropping task event %s for %s: notify channel full", kind, t.id)
	}
}
