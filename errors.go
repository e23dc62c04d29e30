package pagekit

import "errors"

// ErrPoolStopped is returned when Submit is called on a stopped worker pool.
var ErrPoolStopped = errors.New("pagekit: worker pool stopped")

// ErrWorkerClosed is returned when a render request is submitted after Close.
var ErrWorkerClosed = errors.New("pagekit: render worker closed")

// ErrNilPage is returned when a render request carries no page.
var ErrNilPage = errors.New("pagekit: nil page")

// ErrInvalidRequest is returned when render parameters are malformed
// (non-positive target size, unsupported rotation, non-positive zoom).
var ErrInvalidRequest = errors.New("pagekit: invalid render request")

// ErrEmptyLoadKey is returned when a load request has no key.
var ErrEmptyLoadKey = errors.New("pagekit: empty load key")

// ErrDuplicateLoad is returned when Queue is called with a key that is
// already queued or currently being loaded. The existing request wins.
var ErrDuplicateLoad = errors.New("pagekit: duplicate load key")

// ErrNoLoader is reported when no loader is registered for a request's
// resource type.
var ErrNoLoader = errors.New("pagekit: no loader for resource type")

// ErrUnknownState is returned when an invalid task state string is parsed.
var ErrUnknownState = errors.New("pagekit: unknown task state")

// ErrUnknownPolicy is returned when an invalid eviction policy string is parsed.
var ErrUnknownPolicy = errors.New("pagekit: unknown eviction policy")
