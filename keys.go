package pagekit

import "github.com/docview/pagekit/internal/keys"

// Canonical load-key builders. Using them guarantees distinct resources never
// collide on a key, which the scheduler's de-duplication relies on.

// ThumbnailKey returns the load key for a page thumbnail.
func ThumbnailKey(doc DocumentID, page int) string {
	return keys.Thumbnail(string(doc), page)
}

// PageTextKey returns the load key for a page's extracted text.
func PageTextKey(doc DocumentID, page int) string {
	return keys.PageText(string(doc), page)
}

// FontKey returns the load key for an embedded font.
func FontKey(doc DocumentID, name string) string {
	return keys.Font(string(doc), name)
}

// EmbeddedImageKey returns the load key for an embedded image object.
func EmbeddedImageKey(doc DocumentID, object string) string {
	return keys.EmbeddedImage(string(doc), object)
}
