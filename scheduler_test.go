package pagekit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// schedHarness couples a 1-worker pool with a 1-wide scheduler so dispatch
// order is fully determined by the scheduler's queue.
type schedHarness struct {
	pool  *WorkerPool
	sched *LazyLoadScheduler

	mu    sync.Mutex
	order []string
}

func newSchedHarness(t *testing.T, notify func(LoadEvent)) *schedHarness {
	t.Helper()
	h := &schedHarness{}
	h.pool = NewWorkerPool(PoolConfig{MaxWorkers: 1, Logger: NopLogger{}})
	t.Cleanup(h.pool.Stop)

	mux := NewLoaderMux()
	mux.Handle("resource", func(ctx context.Context, req *LoadRequest) (any, error) {
		h.mu.Lock()
		h.order = append(h.order, req.Key)
		h.mu.Unlock()
		if gate, ok := req.Params["gate"].(chan struct{}); ok {
			<-gate
		}
		return "value:" + req.Key, nil
	})

	h.sched = NewLazyLoadScheduler(h.pool, mux, SchedulerConfig{
		MaxConcurrentLoads: 1,
		Logger:             NopLogger{},
		Notify:             notify,
	})
	return h
}

func (h *schedHarness) invoked() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.order...)
}

// queueBlocked enqueues a request whose loader blocks until the returned
// channel is closed, and waits for it to become active.
func (h *schedHarness) queueBlocked(t *testing.T, key string, priority int64) chan struct{} {
	t.Helper()
	gate := make(chan struct{})
	err := h.sched.Queue(&LoadRequest{
		Key:      key,
		Type:     "resource",
		Params:   map[string]any{"gate": gate},
		Priority: priority,
	})
	require.NoError(t, err)
	waitFor(t, func() bool { return h.sched.ActiveCount() == 1 })
	return gate
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestScheduler_DispatchByPriorityThenFIFO(t *testing.T) {
	h := newSchedHarness(t, nil)

	gate := h.queueBlocked(t, "A", 5)
	for _, r := range []struct {
		key string
		pri int64
	}{{"B", 1}, {"C", 5}, {"D", 3}} {
		require.NoError(t, h.sched.Queue(&LoadRequest{Key: r.key, Type: "resource", Priority: r.pri}))
	}
	require.Equal(t, 3, h.sched.QueuedCount())

	close(gate)
	require.True(t, h.pool.WaitForDone(5*time.Second))
	waitFor(t, func() bool { return h.sched.ActiveCount() == 0 && h.sched.QueuedCount() == 0 })

	require.Equal(t, []string{"A", "C", "D", "B"}, h.invoked())
	st := h.sched.Statistics()
	require.Equal(t, uint64(4), st.TotalDispatched)
	require.Equal(t, uint64(4), st.TotalSucceeded)
	require.Zero(t, st.TotalFailed)
}

func TestScheduler_DuplicateKeyIsRejected(t *testing.T) {
	h := newSchedHarness(t, nil)

	gate := h.queueBlocked(t, "A", 0)
	// active duplicate
	require.ErrorIs(t, h.sched.Queue(&LoadRequest{Key: "A", Type: "resource"}), ErrDuplicateLoad)

	// queued duplicate
	require.NoError(t, h.sched.Queue(&LoadRequest{Key: "B", Type: "resource"}))
	require.ErrorIs(t, h.sched.Queue(&LoadRequest{Key: "B", Type: "resource"}), ErrDuplicateLoad)
	require.Equal(t, 1, h.sched.QueuedCount())

	close(gate)
	require.True(t, h.pool.WaitForDone(5*time.Second))
	waitFor(t, func() bool { return h.sched.ActiveCount() == 0 })
	require.Equal(t, []string{"A", "B"}, h.invoked())
}

func TestScheduler_EmptyKeyRejected(t *testing.T) {
	h := newSchedHarness(t, nil)
	require.ErrorIs(t, h.sched.Queue(nil), ErrEmptyLoadKey)
	require.ErrorIs(t, h.sched.Queue(&LoadRequest{Type: "resource"}), ErrEmptyLoadKey)
}

func TestScheduler_CancelQueuedOnly(t *testing.T) {
	h := newSchedHarness(t, nil)

	gate := h.queueBlocked(t, "A", 0)
	require.NoError(t, h.sched.Queue(&LoadRequest{Key: "B", Type: "resource"}))

	require.False(t, h.sched.Cancel("A"), "active loads refuse cancellation")
	require.True(t, h.sched.Cancel("B"))
	require.False(t, h.sched.Cancel("B"), "second cancel must fail")
	require.False(t, h.sched.Cancel("unknown"))
	require.Zero(t, h.sched.QueuedCount())

	close(gate)
	require.True(t, h.pool.WaitForDone(5*time.Second))
	waitFor(t, func() bool { return h.sched.ActiveCount() == 0 })
	require.Equal(t, []string{"A"}, h.invoked(), "canceled request never reaches its loader")
}

func TestScheduler_CancelAll(t *testing.T) {
	h := newSchedHarness(t, nil)

	gate := h.queueBlocked(t, "A", 0)
	require.NoError(t, h.sched.Queue(&LoadRequest{Key: "B", Type: "resource"}))
	require.NoError(t, h.sched.Queue(&LoadRequest{Key: "C", Type: "resource"}))

	require.Equal(t, 2, h.sched.CancelAll())
	require.Zero(t, h.sched.CancelAll())

	// canceled keys are free for re-queueing
	require.NoError(t, h.sched.Queue(&LoadRequest{Key: "B", Type: "resource"}))

	close(gate)
	require.True(t, h.pool.WaitForDone(5*time.Second))
	waitFor(t, func() bool { return h.sched.ActiveCount() == 0 })
	require.Equal(t, []string{"A", "B"}, h.invoked())
}

func TestScheduler_HintNeededJumpsQueue(t *testing.T) {
	h := newSchedHarness(t, nil)

	gate := h.queueBlocked(t, "A", 0)
	require.NoError(t, h.sched.Queue(&LoadRequest{Key: "B", Type: "resource"}))
	require.NoError(t, h.sched.Queue(&LoadRequest{Key: "C", Type: "resource"}))

	h.sched.HintNeeded("C")
	h.sched.HintNeeded("unknown") // ignored

	close(gate)
	require.True(t, h.pool.WaitForDone(5*time.Second))
	waitFor(t, func() bool { return h.sched.ActiveCount() == 0 && h.sched.QueuedCount() == 0 })
	require.Equal(t, []string{"A", "C", "B"}, h.invoked())
}

func TestScheduler_PreloadRaisesPriority(t *testing.T) {
	h := newSchedHarness(t, nil)

	gate := h.queueBlocked(t, "A", 0)
	require.NoError(t, h.sched.Queue(&LoadRequest{Key: "B", Type: "resource", Priority: 10}))
	require.NoError(t, h.sched.Queue(&LoadRequest{Key: "C", Type: "resource", Priority: 1}))
	require.NoError(t, h.sched.Queue(&LoadRequest{Key: "D", Type: "resource", Priority: 30}))

	// C rises above B; D already exceeds the floor and keeps its rank
	h.sched.Preload([]string{"C", "D", "unknown"}, 20)

	close(gate)
	require.True(t, h.pool.WaitForDone(5*time.Second))
	waitFor(t, func() bool { return h.sched.ActiveCount() == 0 && h.sched.QueuedCount() == 0 })
	require.Equal(t, []string{"A", "D", "C", "B"}, h.invoked())
}

func TestScheduler_CallbacksAndNotify(t *testing.T) {
	events := make(chan LoadEvent, 2)
	h := newSchedHarness(t, func(ev LoadEvent) { events <- ev })

	loaded := make(chan any, 1)
	require.NoError(t, h.sched.Queue(&LoadRequest{
		Key:       "A",
		Type:      "resource",
		OnSuccess: func(v any) { loaded <- v },
		OnError:   func(err error) { t.Errorf("unexpected error: %v", err) },
	}))

	select {
	case v := <-loaded:
		require.Equal(t, "value:A", v)
	case <-time.After(5 * time.Second):
		t.Fatal("OnSuccess never called")
	}

	ev := <-events
	require.Equal(t, "A", ev.Key)
	require.Equal(t, "resource", ev.Type)
	require.True(t, ev.OK)
	require.NoError(t, ev.Err)
}

func TestScheduler_UnknownLoaderTypeFailsLoad(t *testing.T) {
	events := make(chan LoadEvent, 1)
	h := newSchedHarness(t, func(ev LoadEvent) { events <- ev })

	errs := make(chan error, 1)
	require.NoError(t, h.sched.Queue(&LoadRequest{
		Key:     "A",
		Type:    "no-such-type",
		OnError: func(err error) { errs <- err },
	}))

	select {
	case err := <-errs:
		require.ErrorIs(t, err, ErrNoLoader)
	case <-time.After(5 * time.Second):
		t.Fatal("OnError never called")
	}

	ev := <-events
	require.False(t, ev.OK)
	require.ErrorIs(t, ev.Err, ErrNoLoader)
	waitFor(t, func() bool { return h.sched.Statistics().TotalFailed == 1 })
}

func TestScheduler_LoaderPanicFailsOnlyItsRequest(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{MaxWorkers: 1, Logger: NopLogger{}})
	t.Cleanup(pool.Stop)

	mux := NewLoaderMux()
	mux.Handle("explosive", func(ctx context.Context, req *LoadRequest) (any, error) {
		panic("loader bug")
	})
	mux.Handle("calm", func(ctx context.Context, req *LoadRequest) (any, error) {
		return "ok", nil
	})
	sched := NewLazyLoadScheduler(pool, mux, SchedulerConfig{MaxConcurrentLoads: 1, Logger: NopLogger{}})

	errs := make(chan error, 1)
	require.NoError(t, sched.Queue(&LoadRequest{
		Key:     "bad",
		Type:    "explosive",
		OnError: func(err error) { errs <- err },
	}))
	select {
	case err := <-errs:
		require.ErrorContains(t, err, "panic")
	case <-time.After(5 * time.Second):
		t.Fatal("OnError never called")
	}

	// the scheduler's active slot was released
	loaded := make(chan any, 1)
	require.NoError(t, sched.Queue(&LoadRequest{
		Key:       "good",
		Type:      "calm",
		OnSuccess: func(v any) { loaded <- v },
	}))
	select {
	case v := <-loaded:
		require.Equal(t, "ok", v)
	case <-time.After(5 * time.Second):
		t.Fatal("follow-up load never ran")
	}
}

func TestScheduler_LoadStateReachesEvent(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{MaxWorkers: 1, Logger: NopLogger{}})
	t.Cleanup(pool.Stop)

	mux := NewLoaderMux()
	mux.Handle("text", func(ctx context.Context, req *LoadRequest) (any, error) {
		SetProgress(ctx, 100)
		SetNote(ctx, "12 pages extracted")
		return "text", nil
	})

	events := make(chan LoadEvent, 1)
	sched := NewLazyLoadScheduler(pool, mux, SchedulerConfig{
		Logger: NopLogger{},
		Notify: func(ev LoadEvent) { events <- ev },
	})
	require.NoError(t, sched.Queue(&LoadRequest{Key: "A", Type: "text"}))

	select {
	case ev := <-events:
		require.Equal(t, 100, ev.Progress)
		require.Equal(t, "12 pages extracted", ev.Note)
		require.Greater(t, ev.Elapsed, time.Duration(0))
	case <-time.After(5 * time.Second):
		t.Fatal("no completion event")
	}
}

func TestScheduler_DispatchFailureCallbackMayReenter(t *testing.T) {
	pool := NewWorkerPool(PoolConfig{MaxWorkers: 1, Logger: NopLogger{}})
	pool.Stop()

	mux := NewLoaderMux()
	mux.Handle("resource", func(ctx context.Context, req *LoadRequest) (any, error) {
		return nil, nil
	})
	sched := NewLazyLoadScheduler(pool, mux, SchedulerConfig{MaxConcurrentLoads: 1, Logger: NopLogger{}})

	errs := make(chan error, 1)
	require.NoError(t, sched.Queue(&LoadRequest{
		Key:  "A",
		Type: "resource",
		OnError: func(err error) {
			// callbacks run without the scheduler lock, so they may call
			// back into it
			require.Zero(t, sched.QueuedCount())
			require.Zero(t, sched.ActiveCount())
			errs <- err
		},
	}))

	select {
	case err := <-errs:
		require.ErrorIs(t, err, ErrPoolStopped)
	case <-time.After(5 * time.Second):
		t.Fatal("OnError never called")
	}
	require.Equal(t, uint64(1), sched.Statistics().TotalFailed)
}

func TestScheduler_SetMaxConcurrentLoads(t *testing.T) {
	h := newSchedHarness(t, nil)
	require.Equal(t, 1, h.sched.MaxConcurrentLoads())

	gateA := h.queueBlocked(t, "A", 0)
	require.NoError(t, h.sched.Queue(&LoadRequest{Key: "B", Type: "resource", Params: map[string]any{"gate": gateA}}))
	require.Equal(t, 1, h.sched.QueuedCount())

	// widening the window dispatches the queued request immediately;
	// the pool has a single worker, so B waits there instead
	h.sched.SetMaxConcurrentLoads(2)
	require.Zero(t, h.sched.QueuedCount())
	require.Equal(t, 2, h.sched.ActiveCount())

	h.sched.SetMaxConcurrentLoads(0) // ignored
	require.Equal(t, 2, h.sched.MaxConcurrentLoads())

	close(gateA)
	require.True(t, h.pool.WaitForDone(5*time.Second))
	waitFor(t, func() bool { return h.sched.ActiveCount() == 0 })
}

func TestTaskPriorityFor(t *testing.T) {
	require.Equal(t, PriorityLow, taskPriorityFor(-5))
	require.Equal(t, PriorityNormal, taskPriorityFor(0))
	require.Equal(t, PriorityNormal, taskPriorityFor(999))
	require.Equal(t, PriorityHigh, taskPriorityFor(hintBump))
	require.Equal(t, PriorityHigh, taskPriorityFor(hintBump+5))
}
