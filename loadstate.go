package pagekit

import (
	"context"

	"github.com/docview/pagekit/internal/loadctx"
)

// SetProgress allows a loader to report progress (0..100) for the current
// load; the value is captured into the completion event. It is a no-op if the
// context does not come from a scheduler dispatch.
func SetProgress(ctx context.Context, p int) {
	st, ok := loadctx.From(ctx)
	if !ok || st == nil {
		return
	}
	if p < 0 {
		p = 0
	} else if p > 100 {
		p = 100
	}
	st.Progress = p
}

// SetNote attaches a short human-readable note to the current load; it is
// captured into the completion event. Safe to call multiple times; last wins.
// It is a no-op if the context does not come from a scheduler dispatch.
func SetNote(ctx context.Context, note string) {
	st, ok := loadctx.From(ctx)
	if !ok || st == nil {
		return
	}
	st.Note = note
}
