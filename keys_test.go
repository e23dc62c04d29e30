package pagekit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadKeyBuilders(t *testing.T) {
	const doc = DocumentID("report.pdf")
	require.Equal(t, "thumb:{report.pdf}:3", ThumbnailKey(doc, 3))
	require.Equal(t, "text:{report.pdf}:0", PageTextKey(doc, 0))
	require.Equal(t, "font:{report.pdf}:Helvetica", FontKey(doc, "Helvetica"))
	require.Equal(t, "img:{report.pdf}:Im42", EmbeddedImageKey(doc, "Im42"))
}

func TestLoadKeyBuildersNeverCollide(t *testing.T) {
	seen := map[string]struct{}{}
	for _, k := range []string{
		ThumbnailKey("doc", 1),
		PageTextKey("doc", 1),
		FontKey("doc", "1"),
		EmbeddedImageKey("doc", "1"),
	} {
		_, dup := seen[k]
		require.False(t, dup, "duplicate key %q", k)
		seen[k] = struct{}{}
	}
}
