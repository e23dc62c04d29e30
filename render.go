package pagekit

import (
	"fmt"
	"image"
	"math"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
)

// RenderRequest asks the render worker to rasterize one page. The worker
// assigns the ID at submission. Done, when set, receives the result on the
// worker goroutine; callers that need thread affinity forward it themselves.
type RenderRequest struct {
	// Page is the page to rasterize.
	Page Page
	// Width and Height give the target pixel size. The page is scaled
	// uniformly by min(Width/naturalW, Height/naturalH) so it never
	// overflows the target bounds.
	Width, Height int
	// Zoom multiplies the fitted scale. Must be positive; 1.0 fits exactly.
	Zoom float64
	// Rotation is applied after rasterization: 0, 90, 180 or 270 degrees
	// clockwise.
	Rotation int
	// Clip, when non-nil, restricts rendering to a region in target pixel
	// coordinates (before rotation).
	Clip *image.Rectangle
	// HighQuality selects the slower, better-looking resampling kernel.
	HighQuality bool
	// Done receives the result. Optional when the caller relies on the
	// worker-level Notify callback instead.
	Done func(RenderResult)

	id       string
	canceled bool
}

// ID returns the identifier assigned by Submit, empty before submission.
func (r *RenderRequest) ID() string { return r.id }

// RenderResult is the outcome of a render request. It is handed to the
// requester and not retained by the worker.
type RenderResult struct {
	ID       string
	Page     Page
	Image    *image.RGBA
	OK       bool
	Canceled bool
	Err      string
}

// RenderConfig defines the configuration for a RenderWorker.
type RenderConfig struct {
	// Logger is the logger used for worker events.
	Logger Logger
	// Notify, if set, receives every render result in addition to the
	// per-request Done callback. Delivered on the worker goroutine.
	Notify func(RenderResult)
}

// RenderWorker owns a single dedicated goroutine that processes page render
// requests in FIFO order. It exists so rendering latency never competes with
// the general worker pool. Cancellation is cooperative: only requests still
// queued can be canceled, and the flag is checked once when a request is
// dequeued.
type RenderWorker struct {
	mu         sync.Mutex
	cond       *sync.Cond
	queue      []*RenderRequest
	processing bool
	closed     bool
	done       chan struct{}

	log    Logger
	notify func(RenderResult)
}

// NewRenderWorker creates the worker and starts its goroutine.
func NewRenderWorker(cfg RenderConfig) *RenderWorker {
	l := cfg.Logger
	if l == nil {
		l = NewFmtLogger()
	}
	w := &RenderWorker{
		done:   make(chan struct{}),
		log:    l,
		notify: cfg.Notify,
	}
	w.cond = sync.NewCond(&w.mu)
	go w.loop()
	return w
}

// Submit validates and enqueues a render request, returning its assigned ID.
// Malformed requests are rejected before any work begins: the error is
// returned and, when a Done callback is present, an immediate failure result
// is delivered as well.
func (w *RenderWorker) Submit(req *RenderRequest) (string, error) {
	if req == nil {
		return "", ErrInvalidRequest
	}
	req.id = uuid.NewString()
	if err := validateRequest(req); err != nil {
		w.log.Warnf("rejecting render request %s: %v", req.id, err)
		w.deliver(req, RenderResult{ID: req.id, Page: req.Page, Err: err.Error()})
		return "", err
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return "", ErrWorkerClosed
	}
	w.queue = append(w.queue, req)
	w.cond.Signal()
	pending := len(w.queue)
	w.mu.Unlock()

	w.log.Debugf("queued render request %s: page=%d size=%dx%d zoom=%.2f rot=%d pending=%d",
		req.id, req.Page.Index(), req.Width, req.Height, req.Zoom, req.Rotation, pending)
	return req.id, nil
}

func validateRequest(req *RenderRequest) error {
	if req.Page == nil {
		return ErrNilPage
	}
	if req.Width <= 0 || req.Height <= 0 {
		return fmt.Errorf("%w: target size %dx%d", ErrInvalidRequest, req.Width, req.Height)
	}
	if req.Zoom <= 0 {
		return fmt.Errorf("%w: zoom %v", ErrInvalidRequest, req.Zoom)
	}
	if !validRotation(req.Rotation) {
		return fmt.Errorf("%w: rotation %d", ErrInvalidRequest, req.Rotation)
	}
	return nil
}

// CancelRequest marks a queued request as canceled. The in-flight request,
// if any, is not affected. Returns true if a queued request was marked.
func (w *RenderWorker) CancelRequest(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, req := range w.queue {
		if req.id == id && !req.canceled {
			req.canceled = true
			w.log.Debugf("marked render request %s as canceled", id)
			return true
		}
	}
	return false
}

// CancelForPage marks every queued request for the given page as canceled
// and returns how many were marked.
func (w *RenderWorker) CancelForPage(p Page) int {
	if p == nil {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, req := range w.queue {
		if !req.canceled && req.Page.Document() == p.Document() && req.Page.Index() == p.Index() {
			req.canceled = true
			n++
		}
	}
	if n > 0 {
		w.log.Debugf("canceled %d queued render requests for page %d of %s", n, p.Index(), p.Document())
	}
	return n
}

// CancelAll marks every queued request as canceled and returns the count.
func (w *RenderWorker) CancelAll() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, req := range w.queue {
		if !req.canceled {
			req.canceled = true
			n++
		}
	}
	if n > 0 {
		w.log.Debugf("canceled all %d queued render requests", n)
	}
	return n
}

// Pending returns the number of queued requests.
func (w *RenderWorker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// Busy reports whether the worker is processing or has queued work.
func (w *RenderWorker) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.processing || len(w.queue) > 0
}

// Close signals the worker, waits for the in-flight request to complete and
// joins the goroutine. Requests still queued are answered with canceled
// results and logged, never silently dropped. Close is idempotent.
func (w *RenderWorker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	w.cond.Broadcast()
	w.mu.Unlock()
	<-w.done
}

func (w *RenderWorker) loop() {
	defer close(w.done)
	w.mu.Lock()
	for {
		for len(w.queue) == 0 && !w.closed {
			w.cond.Wait()
		}
		if w.closed {
			break
		}
		req := w.queue[0]
		w.queue = w.queue[1:]
		if req.canceled {
			// Checked at entry: canceled requests never reach rasterization.
			w.mu.Unlock()
			w.deliver(req, RenderResult{ID: req.id, Page: req.Page, Canceled: true, Err: "request canceled"})
			w.mu.Lock()
			continue
		}
		w.processing = true
		w.mu.Unlock()

		res := w.process(req)
		w.deliver(req, res)

		w.mu.Lock()
		w.processing = false
	}
	rest := w.queue
	w.queue = nil
	w.mu.Unlock()

	for _, req := range rest {
		w.log.Warnf("discarding queued render request %s during shutdown", req.id)
		w.deliver(req, RenderResult{ID: req.id, Page: req.Page, Canceled: true, Err: "render worker shut down"})
	}
	w.log.Debugf("render worker exiting")
}

func (w *RenderWorker) process(req *RenderRequest) RenderResult {
	res := RenderResult{ID: req.id, Page: req.Page}

	naturalW, naturalH := req.Page.Size()
	if naturalW <= 0 || naturalH <= 0 {
		res.Err = fmt.Sprintf("page %d has invalid natural size %gx%g", req.Page.Index(), naturalW, naturalH)
		w.log.Errorf("render request %s: %s", req.id, res.Err)
		return res
	}

	// Uniform fit: the smaller ratio keeps the page inside the target bounds.
	scale := math.Min(float64(req.Width)/naturalW, float64(req.Height)/naturalH) * req.Zoom
	renderW := int(math.Round(naturalW * scale))
	renderH := int(math.Round(naturalH * scale))
	if renderW <= 0 || renderH <= 0 {
		res.Err = fmt.Sprintf("computed render size %dx%d is empty", renderW, renderH)
		w.log.Errorf("render request %s: %s", req.id, res.Err)
		return res
	}

	img, err := w.safeRender(req, renderW, renderH)
	if err != nil {
		res.Err = err.Error()
		w.log.Errorf("render request %s failed: %v", req.id, err)
		return res
	}
	if img == nil {
		res.Err = "page renderer returned no image"
		w.log.Errorf("render request %s: %s", req.id, res.Err)
		return res
	}

	out := scaleImage(img, renderW, renderH, req.HighQuality)
	if req.Rotation != 0 {
		out = rotateImage(out, req.Rotation)
	}

	res.Image = out
	res.OK = true
	w.log.Debugf("rendered page %d of %s for request %s (%dx%d)",
		req.Page.Index(), req.Page.Document(), req.id, out.Bounds().Dx(), out.Bounds().Dy())
	return res
}

// safeRender invokes the page's rasterizer with panic recovery so a broken
// format backend cannot kill the render goroutine.
func (w *RenderWorker) safeRender(req *RenderRequest, width, height int) (img image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			img = nil
			err = fmt.Errorf("pagekit: page render panic: %v", r)
			w.log.Errorf("render request %s panicked: %v\n%s", req.id, r, debug.Stack())
		}
	}()
	return req.Page.Render(width, height, req.Clip)
}

func (w *RenderWorker) deliver(req *RenderRequest, res RenderResult) {
	if req.Done != nil {
		req.Done(res)
	}
	if w.notify != nil {
		w.notify(res)
	}
}
