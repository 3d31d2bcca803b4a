// Package project works out which project a file belongs to.
package project

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fakeyudi/activitywatch-ls/internal/language"
)

// Folders is the set of workspace folders reported by the editor, in the
// order they were added.
//
// Safe for concurrent use.
type Folders struct {
	mu    sync.RWMutex
	paths []string
}

// NewFolders returns a set holding paths, cleaned and de-duplicated.
func NewFolders(paths ...string) *Folders {
	f := &Folders{}
	f.Update(paths, nil)
	return f
}

// Update adds and removes folders. Removals are applied first.
func (f *Folders) Update(added, removed []string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	drop := make(map[string]struct{}, len(removed))
	for _, p := range removed {
		drop[clean(p)] = struct{}{}
	}
	kept := f.paths[:0]
	for _, p := range f.paths {
		if _, ok := drop[p]; !ok {
			kept = append(kept, p)
		}
	}
	f.paths = kept

	for _, p := range added {
		p = clean(p)
		if p == "" || contains(f.paths, p) {
			continue
		}
		f.paths = append(f.paths, p)
	}
}

// List returns a copy of the folders.
func (f *Folders) List() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.paths...)
}

// Len reports how many folders are known.
func (f *Folders) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.paths)
}

// Resolve returns the deepest folder containing path, or the first folder
// when none contains it. ok is false when no folders are known.
func (f *Folders) Resolve(path string) (folder string, ok bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.paths) == 0 {
		return "", false
	}
	path = filepath.Clean(path)
	best := ""
	for _, p := range f.paths {
		if within(p, path) && len(p) > len(best) {
			best = p
		}
	}
	if best == "" {
		return f.paths[0], true
	}
	return best, true
}

// FindRoot walks up from the directory of path to the nearest directory
// holding one of the markers. It returns "" when the filesystem root is
// reached without a match.
func FindRoot(path string, markers []string) string {
	dir := filepath.Dir(filepath.Clean(path))
	for {
		for _, m := range markers {
			if _, err := os.Stat(filepath.Join(dir, m)); err == nil {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// DefaultMarkers are the root markers used when the caller has none.
func DefaultMarkers() []string {
	return append([]string{".git", ".hg", ".jj", ".zed"}, language.RootFiles()...)
}

// Resolver combines workspace folders with the root marker walk-up.
type Resolver struct {
	Folders *Folders
	Markers []string // nil means DefaultMarkers
}

// Project returns the project directory for path: a workspace folder if any
// are known, else the nearest marked root. Non-absolute paths (unsaved
// buffers) only resolve through workspace folders.
func (r *Resolver) Project(path string) string {
	if r.Folders != nil {
		if folder, ok := r.Folders.Resolve(path); ok {
			return folder
		}
	}
	if !filepath.IsAbs(path) {
		return ""
	}
	markers := r.Markers
	if markers == nil {
		markers = DefaultMarkers()
	}
	return FindRoot(path, markers)
}

func clean(p string) string {
	if strings.TrimSpace(p) == "" {
		return ""
	}
	return filepath.Clean(p)
}

func within(dir, path string) bool {
	if dir == path {
		return true
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
