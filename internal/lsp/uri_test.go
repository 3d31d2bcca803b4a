package lsp

import (
	"runtime"
	"testing"

	"go.lsp.dev/uri"
)

func TestPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX paths")
	}
	tests := []struct {
		in   uri.URI
		want string
	}{
		{"file:///home/me/src/main.go", "/home/me/src/main.go"},
		{"file:///home/me/My%20Project/a.rs", "/home/me/My Project/a.rs"},
		{"untitled:Untitled-1", "untitled:Untitled-1"},
		{"ssh://host/etc/hosts", "ssh://host/etc/hosts"},
		{"file://%zz", "file://%zz"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := Path(tc.in); got != tc.want {
			t.Errorf("Path(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
