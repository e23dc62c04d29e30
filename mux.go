package pagekit

import "context"

// LoaderFunc produces a lazily-loaded resource for a request. The context
// carries per-load state (filled via SetProgress and SetNote) that middleware
// and the scheduler's completion event can observe.
type LoaderFunc func(ctx context.Context, req *LoadRequest) (any, error)

// Middleware is a function that wraps a LoaderFunc to provide cross-cutting concerns.
type Middleware func(LoaderFunc) LoaderFunc

type loaderEntry struct {
	exec LoaderFunc
}

// LoaderMux routes load requests to their loaders based on resource type.
// Register loaders before handing the mux to a scheduler; registration is
// not synchronized with dispatch.
type LoaderMux struct {
	loaders     map[string]loaderEntry
	middlewares []Middleware
}

// NewLoaderMux creates an empty LoaderMux.
func NewLoaderMux() *LoaderMux {
	return &LoaderMux{
		loaders:     make(map[string]loaderEntry),
		middlewares: []Middleware{},
	}
}

// Handle registers a loader for a specific resource type.
func (m *LoaderMux) Handle(resourceType string, fn LoaderFunc) {
	m.loaders[resourceType] = loaderEntry{
		exec: fn,
	}
}

// Use adds middleware(s) to the mux. Middlewares are executed in the order they are added.
func (m *LoaderMux) Use(mw Middleware) {
	m.middlewares = append(m.middlewares, mw)
}

// resolve returns the middleware-wrapped loader for a resource type.
func (m *LoaderMux) resolve(resourceType string) (LoaderFunc, error) {
	entry, ok := m.loaders[resourceType]
	if !ok {
		return nil, ErrNoLoader
	}
	fn := entry.exec
	for i := len(m.middlewares) - 1; i >= 0; i-- {
		fn = m.middlewares[i](fn)
	}
	return fn, nil
}
