package lsp

import (
	"net/url"
	"strings"

	"go.lsp.dev/uri"
)

// Path reduces a document URI to what is reported as the heartbeat file:
// the filesystem path for file URIs, the URI itself for anything else
// (untitled buffers, remote schemes).
func Path(u uri.URI) string {
	s := string(u)
	if !strings.HasPrefix(s, uri.FileScheme+"://") {
		return s
	}
	// Filename panics on URIs it cannot parse, so check first.
	if _, err := url.ParseRequestURI(s); err != nil {
		return s
	}
	return u.Filename()
}
