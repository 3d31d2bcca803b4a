// Package language maps file names to language identifiers.
//
// Editors usually report a languageId on didOpen. It is missing for
// didChange and didSave, and extensions often report "plaintext" for files
// they do not own, so the file name is used as a fallback.
package language

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Language describes one language known to the registry.
type Language struct {
	// Name is the LSP language identifier (e.g. "go", "rust").
	Name string

	// Extensions are file extensions including the dot (e.g. ".go").
	Extensions []string

	// FileNames are exact base names (e.g. "Makefile").
	FileNames []string

	// RootFiles mark a project root for this language (e.g. "go.mod").
	RootFiles []string
}

// Registry resolves languages by extension or file name.
//
// Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Language
	byExt  map[string]string // lower-case extension -> name
	byFile map[string]string // base name -> name
}

// NewRegistry returns a registry pre-populated with common languages.
func NewRegistry() *Registry {
	r := &Registry{
		byName: make(map[string]Language),
		byExt:  make(map[string]string),
		byFile: make(map[string]string),
	}
	for _, l := range defaults {
		r.Register(l)
	}
	return r
}

// Register adds or replaces a language. Later registrations win for shared
// extensions.
func (r *Registry) Register(l Language) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[l.Name] = l
	for _, ext := range l.Extensions {
		r.byExt[strings.ToLower(ext)] = l.Name
	}
	for _, f := range l.FileNames {
		r.byFile[f] = l.Name
	}
}

// Lookup returns the language registered under name.
func (r *Registry) Lookup(name string) (Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.byName[name]
	return l, ok
}

// ForPath guesses the language of path from its name. It returns "" when
// nothing matches.
func (r *Registry) ForPath(path string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	base := filepath.Base(path)
	if name, ok := r.byFile[base]; ok {
		return name
	}
	if name, ok := r.byExt[strings.ToLower(filepath.Ext(base))]; ok {
		return name
	}
	// Dockerfile.dev, Makefile.am and friends.
	if i := strings.IndexByte(base, '.'); i > 0 {
		if name, ok := r.byFile[base[:i]]; ok {
			return name
		}
	}
	return ""
}

// Detect returns hint when it is a usable editor-provided identifier and
// falls back to ForPath otherwise.
func (r *Registry) Detect(path, hint string) string {
	if usable(hint) {
		return hint
	}
	if name := r.ForPath(path); name != "" {
		return name
	}
	return strings.TrimSpace(hint)
}

// RootFiles returns every registered project root marker, sorted.
func (r *Registry) RootFiles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, l := range r.byName {
		for _, f := range l.RootFiles {
			seen[f] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func usable(hint string) bool {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "", "plaintext", "plain text", "text":
		return false
	}
	return true
}

var std = NewRegistry()

// Detect uses the default registry.
func Detect(path, hint string) string { return std.Detect(path, hint) }

// ForPath uses the default registry.
func ForPath(path string) string { return std.ForPath(path) }

// RootFiles uses the default registry.
func RootFiles() []string { return std.RootFiles() }
