package pagekit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTask_NewDefaults(t *testing.T) {
	tk := newTask(func() error { return nil }, "render", PriorityHigh)

	require.NotEmpty(t, tk.ID())
	require.Equal(t, "render", tk.Name())
	require.Equal(t, PriorityHigh, tk.Priority())
	require.Equal(t, TaskQueued, tk.State())
	require.False(t, tk.EnqueueTime().IsZero())
	require.True(t, tk.StartTime().IsZero())
	require.Zero(t, tk.ExecutionTime())
	require.NoError(t, tk.Err())
}

func TestTask_LifecycleMonotonic(t *testing.T) {
	tk := newTask(func() error { return nil }, "", PriorityNormal)

	require.True(t, tk.tryStart())
	require.Equal(t, TaskRunning, tk.State())
	// no way back to queued: a second start must fail
	require.False(t, tk.tryStart())
	// running tasks cannot be canceled
	require.False(t, tk.tryCancel())

	bodyErr := errors.New("boom")
	tk.finish(bodyErr)
	require.Equal(t, TaskFinished, tk.State())
	require.ErrorIs(t, tk.Err(), bodyErr)
	require.False(t, tk.FinishTime().IsZero())
	require.GreaterOrEqual(t, tk.ExecutionTime(), time.Duration(0))
}

func TestTask_CancelOnlyWhileQueued(t *testing.T) {
	tk := newTask(nil, "", PriorityNormal)

	require.True(t, tk.tryCancel())
	require.Equal(t, TaskCanceled, tk.State())
	require.True(t, tk.Canceled())
	// canceled is terminal
	require.False(t, tk.tryStart())
	require.False(t, tk.tryCancel())
}

func TestTask_UserData(t *testing.T) {
	tk := newTask(nil, "", PriorityNormal)
	require.Nil(t, tk.UserData())

	tk.SetUserData(42)
	require.Equal(t, 42, tk.UserData())
}

func TestTaskPriority_String(t *testing.T) {
	require.Equal(t, "low", PriorityLow.String())
	require.Equal(t, "normal", PriorityNormal.String())
	require.Equal(t, "high", PriorityHigh.String())
	require.Equal(t, "critical", PriorityCritical.String())
}
