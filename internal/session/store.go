package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// ErrNoSession is returned by Load when no session file exists on disk.
var ErrNoSession = errors.New("no such session")

// SessionStore persists Sessions to disk, one file per server process.
type SessionStore interface {
	Save(s *Session) error
	Load(id string) (*Session, error) // returns ErrNoSession if none exists
	List() ([]*Session, error)        // newest first
	Delete(id string) error
	Dir() string
}

// diskStore is the concrete SessionStore that writes to the XDG data directory.
type diskStore struct {
	dir string // directory holding <id>.json files
}

// NewSessionStore returns a SessionStore backed by the XDG data directory.
// Path: $XDG_DATA_HOME/activitywatch-ls/sessions or ~/.local/share/activitywatch-ls/sessions
func NewSessionStore() (SessionStore, error) {
	dir, err := DataDir()
	if err != nil {
		return nil, fmt.Errorf("resolving data directory: %w", err)
	}
	return NewSessionStoreAt(filepath.Join(dir, "sessions"))
}

// NewSessionStoreAt returns a SessionStore rooted at dir, creating it.
func NewSessionStoreAt(dir string) (SessionStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}
	return &diskStore{dir: dir}, nil
}

// DataDir returns the activitywatch-ls XDG data directory.
func DataDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "activitywatch-ls"), nil
}

func (d *diskStore) Dir() string { return d.dir }

func (d *diskStore) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid session id %q", id)
	}
	return filepath.Join(d.dir, id+".json"), nil
}

// Save marshals s to JSON and writes it atomically via a temp file + os.Rename.
func (d *diskStore) Save(s *Session) (err error) {
	path, err := d.path(s.ID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to persist session state: %w", err)
	}

	// Write to a temp file in the same directory so os.Rename is atomic.
	// The suffix keeps List from picking it up.
	tmp, err := os.CreateTemp(d.dir, "session-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to persist session state: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to persist session state: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to persist session state: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to persist session state: %w", err)
	}
	return nil
}

// Load reads and unmarshals one session file.
// Returns ErrNoSession if the file does not exist.
func (d *diskStore) Load(id string) (*Session, error) {
	path, err := d.path(id)
	if err != nil {
		return nil, err
	}
	return readSession(path)
}

func readSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("failed to read session state: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session state: %w", err)
	}
	return &s, nil
}

// List returns every readable session, most recently started first.
// Files that vanish or fail to parse mid-listing are skipped.
func (d *diskStore) List() ([]*Session, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	var out []*Session
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		s, err := readSession(filepath.Join(d.dir, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out, nil
}

// Delete removes a session file from disk.
func (d *diskStore) Delete(id string) error {
	path, err := d.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete session state: %w", err)
	}
	return nil
}

// Prune deletes sessions whose process is gone and returns how many were removed.
func Prune(store SessionStore) (int, error) {
	sessions, err := store.List()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range sessions {
		if s.Alive() {
			continue
		}
		if err := store.Delete(s.ID); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Watch calls fn whenever a session file in dir is written, created or
// removed, until ctx is cancelled.
func Watch(ctx context.Context, dir string, fn func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				fn()
			}

		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// Watcher errors are non-fatal; continue watching.
		}
	}
}
