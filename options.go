package pagekit

type taskOptions struct {
	name     string
	priority TaskPriority
	userData any
}

// TaskOption configures a task during Submit.
type TaskOption func(*taskOptions)

// TaskName sets a display name for the task, used in logs and events.
func TaskName(name string) TaskOption {
	return func(o *taskOptions) {
		o.name = name
	}
}

// TaskWithPriority sets the scheduling hint for the task. Default is
// PriorityNormal.
func TaskWithPriority(p TaskPriority) TaskOption {
	return func(o *taskOptions) {
		o.priority = p
	}
}

// TaskUserData attaches arbitrary caller data to the task at submission.
func TaskUserData(v any) TaskOption {
	return func(o *taskOptions) {
		o.userData = v
	}
}

type putOptions struct {
	sizeBytes int64
	metadata  map[string]any
}

// PutOption configures a GeneralCache insert.
type PutOption func(*putOptions)

// PutSize provides the exact byte cost of the value, bypassing the heuristic
// estimator. Preferred whenever the caller knows the real size.
func PutSize(n int64) PutOption {
	return func(o *putOptions) {
		if n > 0 {
			o.sizeBytes = n
		}
	}
}

// PutMetadata attaches a metadata map to the cached item. The map is stored
// as given; callers must not mutate it afterwards.
func PutMetadata(md map[string]any) PutOption {
	return func(o *putOptions) {
		o.metadata = md
	}
}
