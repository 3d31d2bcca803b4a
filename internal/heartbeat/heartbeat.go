// Package heartbeat decides when editor activity becomes an ActivityWatch
// heartbeat and ships heartbeats to the server in the background.
package heartbeat

import (
	"time"

	"github.com/fakeyudi/activitywatch-ls/internal/aw"
)

// Activity is one observed editor event on a file.
type Activity struct {
	File     string
	Project  string
	Language string
	Branch   string
	IsWrite  bool // true for saves
}

// Heartbeat is an Activity that passed the emission rule, stamped with the
// time it was observed and the editor that produced it.
type Heartbeat struct {
	Timestamp time.Time `json:"timestamp"`
	File      string    `json:"file"`
	Project   string    `json:"project,omitempty"`
	Language  string    `json:"language,omitempty"`
	Branch    string    `json:"branch,omitempty"`
	Editor    string    `json:"editor,omitempty"`
	IsWrite   bool      `json:"is_write,omitempty"`
}

// Data is the event payload sent to ActivityWatch. Empty values are left out
// so the server does not split otherwise identical events.
func (h Heartbeat) Data() map[string]string {
	data := map[string]string{"file": h.File}
	for k, v := range map[string]string{
		"project":  h.Project,
		"language": h.Language,
		"branch":   h.Branch,
		"editor":   h.Editor,
	} {
		if v != "" {
			data[k] = v
		}
	}
	return data
}

// Event converts h into a zero-duration ActivityWatch event.
func (h Heartbeat) Event() aw.Event {
	return aw.Event{Timestamp: h.Timestamp, Data: h.Data()}
}
