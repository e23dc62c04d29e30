// Package keys centralizes load-request key construction. Keeping the
// formats in one place guarantees distinct resources never collide on a key,
// which the scheduler relies on for de-duplication.
package keys

import "strconv"

// Thumbnail returns the key for a page thumbnail.
func Thumbnail(doc string, page int) string {
	return "thumb:{" + doc + "}:" + strconv.Itoa(page)
}

// PageText returns the key for a page's extracted text.
func PageText(doc string, page int) string {
	return "text:{" + doc + "}:" + strconv.Itoa(page)
}

// Font returns the key for an embedded font.
func Font(doc, name string) string {
	return "font:{" + doc + "}:" + name
}

// EmbeddedImage returns the key for an embedded image object.
func EmbeddedImage(doc, object string) string {
	return "img:{" + doc + "}:" + object
}

// Resource holds precomputed key prefixes for a document to avoid repeated
// concatenations on hot paths.
type Resource struct {
	Thumbnail string
	PageText  string
	Font      string
	Image     string
}

// For returns the key prefixes for the provided document.
func For(doc string) Resource {
	return Resource{
		Thumbnail: "thumb:{" + doc + "}:",
		PageText:  "text:{" + doc + "}:",
		Font:      "font:{" + doc + "}:",
		Image:     "img:{" + doc + "}:",
	}
}
