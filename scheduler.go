package pagekit

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/docview/pagekit/internal/loadctx"
	"github.com/docview/pagekit/internal/pqueue"
)

// hintBump is added to a queued request's priority by HintNeeded.
const hintBump = 1000

// LoadRequest is a named, prioritized request for a lazily-produced
// resource: a thumbnail, extracted text, a font. The key identifies the
// resource; queueing a key that is already queued or loading is a no-op.
type LoadRequest struct {
	// Key uniquely identifies the resource (see ThumbnailKey and the other
	// canonical builders).
	Key string
	// Type selects the loader registered on the LoaderMux.
	Type string
	// Params carries loader-specific parameters.
	Params map[string]any
	// Priority orders the queue; higher is more urgent.
	Priority int64
	// OnSuccess receives the loaded value. Called on a worker goroutine.
	OnSuccess func(any)
	// OnError receives the failure. Called on a worker goroutine.
	OnError func(error)

	enqueuedAt time.Time
}

// EnqueueTime returns when the request entered the queue.
func (r *LoadRequest) EnqueueTime() time.Time { return r.enqueuedAt }

// LoadEvent describes a finished load, successful or not.
type LoadEvent struct {
	Key      string
	Type     string
	OK       bool
	Err      error
	Progress int
	Note     string
	Elapsed  time.Duration
}

// SchedulerStats is a counter snapshot returned by Statistics.
type SchedulerStats struct {
	Queued             int    `json:"queued"`
	Active             int    `json:"active"`
	MaxConcurrentLoads int    `json:"max_concurrent_loads"`
	TotalDispatched    uint64 `json:"total_dispatched"`
	TotalSucceeded     uint64 `json:"total_succeeded"`
	TotalFailed        uint64 `json:"total_failed"`
}

// SchedulerConfig defines the configuration for a LazyLoadScheduler.
type SchedulerConfig struct {
	// MaxConcurrentLoads caps how many loads run at once. Defaults to 4.
	MaxConcurrentLoads int
	// Logger is the logger used for scheduler events.
	Logger Logger
	// Notify, if set, receives a LoadEvent for every finished load.
	// Delivered on the worker goroutine that ran the load.
	Notify func(LoadEvent)
}

// LazyLoadScheduler feeds prioritized load requests into a WorkerPool,
// throttling concurrency. The queue orders by priority descending, then
// enqueue time ascending (stable FIFO within equal priority). Dispatch is
// self-driving: every completion immediately tries to dispatch the next
// queued request.
type LazyLoadScheduler struct {
	pool *WorkerPool
	mux  *LoaderMux

	mu            sync.Mutex
	q             *pqueue.Queue
	queued        map[string]*pqueue.Item
	active        map[string]struct{}
	maxConcurrent int

	totalDispatched uint64
	totalSucceeded  uint64
	totalFailed     uint64

	log    Logger
	notify func(LoadEvent)
}

// NewLazyLoadScheduler creates a scheduler dispatching onto the given pool
// and resolving loaders through the given mux.
func NewLazyLoadScheduler(pool *WorkerPool, mux *LoaderMux, cfg SchedulerConfig) *LazyLoadScheduler {
	if cfg.MaxConcurrentLoads <= 0 {
		cfg.MaxConcurrentLoads = 4
	}
	l := cfg.Logger
	if l == nil {
		l = NewFmtLogger()
	}
	return &LazyLoadScheduler{
		pool:          pool,
		mux:           mux,
		q:             pqueue.New(),
		queued:        make(map[string]*pqueue.Item),
		active:        make(map[string]struct{}),
		maxConcurrent: cfg.MaxConcurrentLoads,
		log:           l,
		notify:        cfg.Notify,
	}
}

// Queue enqueues a load request. A key that is already queued or actively
// loading is left alone and ErrDuplicateLoad is returned; callers that need
// to replace parameters must Cancel first, which only works while queued.
func (s *LazyLoadScheduler) Queue(req *LoadRequest) error {
	if req == nil || req.Key == "" {
		return ErrEmptyLoadKey
	}
	s.mu.Lock()
	if _, ok := s.queued[req.Key]; ok {
		s.mu.Unlock()
		s.log.Debugf("load request already queued: %s", req.Key)
		return ErrDuplicateLoad
	}
	if _, ok := s.active[req.Key]; ok {
		s.mu.Unlock()
		s.log.Debugf("load request already active: %s", req.Key)
		return ErrDuplicateLoad
	}
	req.enqueuedAt = time.Now()
	s.queued[req.Key] = s.q.Push(req, req.Priority, req.enqueuedAt)
	s.log.Debugf("queued load request %s (type=%s priority=%d)", req.Key, req.Type, req.Priority)
	failed := s.dispatchLocked()
	s.mu.Unlock()

	s.deliverFailures(failed)
	return nil
}

// Cancel removes a request that is still queued. Once dispatched, a load
// cannot be canceled through this interface; Cancel then returns false.
func (s *LazyLoadScheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[key]; ok {
		s.log.Debugf("cannot cancel active load: %s", key)
		return false
	}
	it, ok := s.queued[key]
	if !ok {
		return false
	}
	s.q.Remove(it)
	delete(s.queued, key)
	s.log.Debugf("canceled queued load request: %s", key)
	return true
}

// CancelAll drops every queued request and returns the count. Active loads
// run to completion.
func (s *LazyLoadScheduler) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.q.Clear()
	s.queued = make(map[string]*pqueue.Item)
	if n > 0 {
		s.log.Debugf("canceled all %d queued load requests", n)
	}
	return n
}

// HintNeeded bumps an already-queued request's priority by a large amount
// and refreshes its queue position. Hints for unknown or active keys are
// ignored.
func (s *LazyLoadScheduler) HintNeeded(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.queued[key]
	if !ok {
		s.log.Debugf("hint for unqueued resource ignored: %s", key)
		return
	}
	req := it.Value.(*LoadRequest)
	req.Priority += hintBump
	req.enqueuedAt = time.Now()
	s.q.Update(it, req.Priority, req.enqueuedAt)
	s.log.Debugf("hinted resource needed, bumped priority: %s -> %d", key, req.Priority)
}

// Preload raises every listed queued request to at least the given
// priority. Keys not currently queued are ignored; preloading something
// that was never requested requires a Queue call with a loader type.
func (s *LazyLoadScheduler) Preload(keys []string, priority int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		it, ok := s.queued[key]
		if !ok {
			s.log.Debugf("preload for unqueued resource ignored: %s", key)
			continue
		}
		req := it.Value.(*LoadRequest)
		if req.Priority >= priority {
			continue
		}
		req.Priority = priority
		s.q.Update(it, req.Priority, req.enqueuedAt)
	}
}

// SetMaxConcurrentLoads changes the concurrency cap. Raising it dispatches
// queued requests immediately.
func (s *LazyLoadScheduler) SetMaxConcurrentLoads(n int) {
	if n < 1 {
		return
	}
	s.mu.Lock()
	if s.maxConcurrent == n {
		s.mu.Unlock()
		return
	}
	s.maxConcurrent = n
	s.log.Infof("max concurrent loads set to %d", n)
	failed := s.dispatchLocked()
	s.mu.Unlock()

	s.deliverFailures(failed)
}

// MaxConcurrentLoads returns the concurrency cap.
func (s *LazyLoadScheduler) MaxConcurrentLoads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxConcurrent
}

// QueuedCount returns the number of requests waiting for dispatch.
func (s *LazyLoadScheduler) QueuedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.Len()
}

// ActiveCount returns the number of requests currently loading.
func (s *LazyLoadScheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Statistics returns a counter snapshot.
func (s *LazyLoadScheduler) Statistics() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SchedulerStats{
		Queued:             s.q.Len(),
		Active:             len(s.active),
		MaxConcurrentLoads: s.maxConcurrent,
		TotalDispatched:    s.totalDispatched,
		TotalSucceeded:     s.totalSucceeded,
		TotalFailed:        s.totalFailed,
	}
}

// failedDispatch carries a request the pool refused, so its error callback
// can run after the scheduler lock is released.
type failedDispatch struct {
	req *LoadRequest
	err error
}

// dispatchLocked drains the queue head into the pool while the active count
// stays under the concurrency cap. Refused requests are returned to the
// caller instead of having their callbacks run here: all callback delivery
// happens outside the lock, so a callback may call back into the scheduler.
func (s *LazyLoadScheduler) dispatchLocked() []failedDispatch {
	var failed []failedDispatch
	for len(s.active) < s.maxConcurrent && s.q.Len() > 0 {
		it := s.q.Pop()
		req := it.Value.(*LoadRequest)
		delete(s.queued, req.Key)
		s.active[req.Key] = struct{}{}
		s.totalDispatched++
		if err := s.submitLocked(req); err != nil {
			failed = append(failed, failedDispatch{req: req, err: err})
		}
	}
	return failed
}

func (s *LazyLoadScheduler) submitLocked(req *LoadRequest) error {
	_, err := s.pool.Submit(
		func() error {
			s.run(req)
			return nil
		},
		TaskName("load:"+req.Key),
		TaskWithPriority(taskPriorityFor(req.Priority)),
	)
	if err != nil {
		delete(s.active, req.Key)
		s.totalFailed++
		s.log.Warnf("dispatch of %s failed: %v", req.Key, err)
		return err
	}
	return nil
}

func (s *LazyLoadScheduler) deliverFailures(failed []failedDispatch) {
	for _, f := range failed {
		if f.req.OnError != nil {
			f.req.OnError(f.err)
		}
	}
}

// run executes one load on a pool worker and then immediately tries to
// dispatch the next queued request.
func (s *LazyLoadScheduler) run(req *LoadRequest) {
	st := loadctx.New()
	ctx := loadctx.WithState(context.Background(), st)
	start := time.Now()

	var val any
	fn, err := s.mux.resolve(req.Type)
	if err == nil {
		val, err = s.invoke(ctx, fn, req)
	}
	elapsed := time.Since(start)

	s.mu.Lock()
	delete(s.active, req.Key)
	if err != nil {
		s.totalFailed++
	} else {
		s.totalSucceeded++
	}
	failed := s.dispatchLocked()
	s.mu.Unlock()

	s.deliverFailures(failed)
	if err != nil {
		s.log.Warnf("load %s failed after %s: %v", req.Key, elapsed, err)
		if req.OnError != nil {
			req.OnError(err)
		}
	} else {
		s.log.Debugf("load %s finished in %s", req.Key, elapsed)
		if req.OnSuccess != nil {
			req.OnSuccess(val)
		}
	}
	if s.notify != nil {
		s.notify(LoadEvent{
			Key:      req.Key,
			Type:     req.Type,
			OK:       err == nil,
			Err:      err,
			Progress: st.Progress,
			Note:     st.Note,
			Elapsed:  elapsed,
		})
	}
}

// invoke runs the loader with panic recovery so a broken loader fails its
// own request instead of poisoning the scheduler's active count.
func (s *LazyLoadScheduler) invoke(ctx context.Context, fn LoaderFunc, req *LoadRequest) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			val = nil
			err = fmt.Errorf("pagekit: loader panic: %v", r)
			s.log.Errorf("loader for %s panicked: %v\n%s", req.Key, r, debug.Stack())
		}
	}()
	return fn(ctx, req)
}

// taskPriorityFor maps an integer request priority onto the pool's coarse
// priority levels. Hinted requests land in the high band.
func taskPriorityFor(p int64) TaskPriority {
	switch {
	case p < 0:
		return PriorityLow
	case p >= hintBump:
		return PriorityHigh
	default:
		return PriorityNormal
	}
}
