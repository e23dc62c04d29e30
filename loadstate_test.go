package pagekit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/docview/pagekit/internal/loadctx"
)

func TestSetProgress(t *testing.T) {
	st := loadctx.New()
	ctx := loadctx.WithState(context.Background(), st)

	SetProgress(ctx, 42)
	require.Equal(t, 42, st.Progress)

	// out-of-range values are clamped
	SetProgress(ctx, -5)
	require.Zero(t, st.Progress)
	SetProgress(ctx, 150)
	require.Equal(t, 100, st.Progress)
}

func TestSetNote(t *testing.T) {
	st := loadctx.New()
	ctx := loadctx.WithState(context.Background(), st)

	SetNote(ctx, "halfway")
	SetNote(ctx, "done")
	require.Equal(t, "done", st.Note)
}

func TestLoadStateSettersIgnorePlainContext(t *testing.T) {
	// must not panic outside a scheduler dispatch
	SetProgress(context.Background(), 10)
	SetNote(context.Background(), "ignored")
}
