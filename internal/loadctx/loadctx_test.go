package loadctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrom_MissingState(t *testing.T) {
	st, ok := From(context.Background())
	require.False(t, ok)
	require.Nil(t, st)
}

func TestWithState_RoundTrip(t *testing.T) {
	st := New()
	ctx := WithState(context.Background(), st)

	got, ok := From(ctx)
	require.True(t, ok)
	require.Same(t, st, got)

	got.Progress = 42
	got.Note = "halfway"
	require.Equal(t, 42, st.Progress)
	require.Equal(t, "halfway", st.Note)
}
