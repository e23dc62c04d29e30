package loadctx

import "context"

// State holds per-load, loader-provided metadata that the scheduler
// captures into the completion event after the loader returns.
type State struct {
	Progress int
	Note     string
}

// New creates a fresh load state container.
func New() *State { return &State{} }

type ctxKey struct{}

// WithState returns a child context carrying the given load state.
func WithState(parent context.Context, s *State) context.Context {
	return context.WithValue(parent, ctxKey{}, s)
}

// From extracts the load state from context if present.
func From(ctx context.Context) (*State, bool) {
	v := ctx.Value(ctxKey{})
	if v == nil {
		return nil, false
	}
	st, ok := v.(*State)
	return st, ok
}
