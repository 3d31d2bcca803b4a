package heartbeat

import (
	"path/filepath"
	"sync"
	"time"
)

const (
	// Interval is how long repeated non-write activity on the same file is
	// folded into the previous heartbeat.
	Interval = 2 * time.Minute

	// Pulsetime is the merge window sent to the server with every heartbeat.
	Pulsetime = Interval - 10*time.Second
)

// Tracker applies the emission rule to a stream of activities.
//
// An activity is skipped only when it is not a write, targets the same file
// as the last emitted heartbeat, and arrives less than Interval after it.
// Everything else becomes a heartbeat and moves the reference point.
type Tracker struct {
	mu       sync.Mutex
	now      func() time.Time
	editor   string
	ignore   []string
	lastFile string
	lastTime time.Time
	prevFile string
	prevTime time.Time
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// WithIgnorePatterns drops activity on files matching any of the globs.
// Patterns are matched against the base name and the full path.
func WithIgnorePatterns(patterns []string) TrackerOption {
	return func(t *Tracker) { t.ignore = append([]string(nil), patterns...) }
}

// NewTracker returns a Tracker stamping heartbeats with editor.
func NewTracker(editor string, opts ...TrackerOption) *Tracker {
	t := &Tracker{now: time.Now, editor: editor}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetEditor changes the editor identifier used for subsequent heartbeats.
func (t *Tracker) SetEditor(editor string) {
	t.mu.Lock()
	t.editor = editor
	t.mu.Unlock()
}

// Observe runs a through the emission rule. ok is false when no heartbeat
// should be sent.
func (t *Tracker) Observe(a Activity) (hb Heartbeat, ok bool) {
	if a.File == "" || t.ignored(a.File) {
		return Heartbeat{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if !a.IsWrite && a.File == t.lastFile && now.Sub(t.lastTime) < Interval {
		return Heartbeat{}, false
	}
	t.prevFile, t.prevTime = t.lastFile, t.lastTime
	t.lastFile = a.File
	t.lastTime = now

	return Heartbeat{
		Timestamp: now,
		File:      a.File,
		Project:   a.Project,
		Language:  a.Language,
		Branch:    a.Branch,
		Editor:    t.editor,
		IsWrite:   a.IsWrite,
	}, true
}

// Rollback restores the reference point that was in place before hb was
// emitted. Call it when hb could not be handed off for sending. It does
// nothing if a later heartbeat has already moved the reference.
func (t *Tracker) Rollback(hb Heartbeat) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastFile != hb.File || !t.lastTime.Equal(hb.Timestamp) {
		return
	}
	t.lastFile, t.lastTime = t.prevFile, t.prevTime
	t.prevFile, t.prevTime = "", time.Time{}
}

// Last returns the file and time of the last emitted heartbeat.
func (t *Tracker) Last() (string, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastFile, t.lastTime
}

func (t *Tracker) ignored(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range t.ignore {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
		if matched, _ := filepath.Match(pattern, path); matched {
			return true
		}
	}
	return false
}
