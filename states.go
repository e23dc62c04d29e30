package pagekit

// TaskState represents a task's position in its lifecycle. Transitions are
// monotonic: Queued -> Running -> Finished, or Queued -> Canceled. Use the
// exported constants instead of raw strings to avoid typos.
type TaskState string

const (
	// TaskQueued means the task is waiting for a free worker.
	TaskQueued TaskState = "queued"
	// TaskRunning means a worker is executing the task body.
	TaskRunning TaskState = "running"
	// TaskFinished means the body returned, successfully or not.
	TaskFinished TaskState = "finished"
	// TaskCanceled means the task was canceled while still queued.
	TaskCanceled TaskState = "canceled"
)

// AllTaskStates lists every valid task state in a stable order.
var AllTaskStates = []TaskState{TaskQueued, TaskRunning, TaskFinished, TaskCanceled}

// String returns the raw string value of the state.
func (s TaskState) String() string { return string(s) }

// Terminal reports whether the state is final.
func (s TaskState) Terminal() bool { return s == TaskFinished || s == TaskCanceled }

// ParseTaskState converts a string into a TaskState, returning an error for
// unknown values.
func ParseTaskState(s string) (TaskState, error) {
	switch s {
	case string(TaskQueued):
		return TaskQueued, nil
	case string(TaskRunning):
		return TaskRunning, nil
	case string(TaskFinished):
		return TaskFinished, nil
	case string(TaskCanceled):
		return TaskCanceled, nil
	default:
		return "", ErrUnknownState
	}
}
