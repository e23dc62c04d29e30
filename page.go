package pagekit

import "image"

// DocumentID is a stable per-document identity usable as a cache-key
// component. Format backends typically use a file path or content hash.
type DocumentID string

// Page is the shape this core requires from a document page. Format-specific
// rasterization (PDF, EPUB, ...) lives behind this interface; the render
// worker decides scale and rotation, the page decides pixels.
type Page interface {
	// Document identifies the document the page belongs to.
	Document() DocumentID
	// Index is the zero-based page number within the document.
	Index() int
	// Size returns the natural page size in device-independent points.
	Size() (w, h float64)
	// Render rasterizes the page at the given pixel size. clip, when non-nil,
	// restricts rendering to a region in target pixel coordinates. Render is
	// not expected to honor cancellation; the worker never interrupts it.
	Render(width, height int, clip *image.Rectangle) (image.Image, error)
}
