package pagekit

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskPriority is a scheduling hint for the worker pool. Queued tasks with a
// higher priority are picked up first; it does not preempt running tasks.
type TaskPriority int

const (
	PriorityLow      TaskPriority = -1
	PriorityNormal   TaskPriority = 0
	PriorityHigh     TaskPriority = 1
	PriorityCritical TaskPriority = 2
)

// String returns a human-readable priority name.
func (p TaskPriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "normal"
	}
}

// Task is a unit of deferred work owned by a WorkerPool until it reaches a
// terminal state. All accessors are safe for concurrent use.
type Task struct {
	id       string
	name     string
	priority TaskPriority
	fn       func() error

	mu         sync.Mutex
	state      TaskState
	canceled   bool
	enqueuedAt time.Time
	startedAt  time.Time
	finishedAt time.Time
	err        error
	userData   any
}

func newTask(fn func() error, name string, priority TaskPriority) *Task {
	return &Task{
		id:         uuid.NewString(),
		name:       name,
		priority:   priority,
		fn:         fn,
		state:      TaskQueued,
		enqueuedAt: time.Now(),
	}
}

// ID returns the task's unique identifier.
func (t *Task) ID() string { return t.id }

// Name returns the display name given at submission, possibly empty.
func (t *Task) Name() string { return t.name }

// Priority returns the scheduling hint given at submission.
func (t *Task) Priority() TaskPriority { return t.priority }

// State returns the task's current lifecycle state.
func (t *Task) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Canceled reports whether Cancel succeeded on this task.
func (t *Task) Canceled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canceled
}

// Err returns the error produced by the task body, or the recovered panic
// wrapped as an error. Nil until the task finishes, and for successful tasks.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// EnqueueTime returns when the task was submitted.
func (t *Task) EnqueueTime() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enqueuedAt
}

// StartTime returns when a worker picked the task up; zero if never started.
func (t *Task) StartTime() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startedAt
}

// FinishTime returns when the task reached a terminal state; zero until then.
func (t *Task) FinishTime() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finishedAt
}

// ExecutionTime returns how long the body ran, or zero if the task has not
// finished running.
func (t *Task) ExecutionTime() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.startedAt.IsZero() || t.finishedAt.IsZero() {
		return 0
	}
	return t.finishedAt.Sub(t.startedAt)
}

// SetUserData attaches arbitrary caller data to the task.
func (t *Task) SetUserData(v any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.userData = v
}

// UserData returns data previously stored with SetUserData.
func (t *Task) UserData() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.userData
}

// tryCancel flips a still-queued task to Canceled. Returns false once the
// task is running or terminal.
func (t *Task) tryCancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TaskQueued {
		return false
	}
	t.state = TaskCanceled
	t.canceled = true
	t.finishedAt = time.Now()
	return true
}

// tryStart moves a queued task to Running. Returns false if the task was
// canceled while waiting in the queue.
func (t *Task) tryStart() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TaskQueued {
		return false
	}
	t.state = TaskRunning
	t.startedAt = time.Now()
	return true
}

// finish records the terminal Finished state together with the body's error.
func (t *Task) finish(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = TaskFinished
	t.err = err
	t.finishedAt = time.Now()
}
