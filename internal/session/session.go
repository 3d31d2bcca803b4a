package session

import (
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/fakeyudi/activitywatch-ls/internal/heartbeat"
)

// MaxRecent is how many heartbeats a session keeps for the dashboard.
const MaxRecent = 50

// Session is the on-disk record of one running language server process.
type Session struct {
	ID               string                `json:"id"`
	PID              int                   `json:"pid"`
	StartTime        time.Time             `json:"start_time"`
	UpdatedAt        time.Time             `json:"updated_at"`
	Server           string                `json:"server"`    // ActivityWatch base URL
	BucketID         string                `json:"bucket_id"`
	Editor           string                `json:"editor,omitempty"`
	EditorVersion    string                `json:"editor_version,omitempty"`
	WorkspaceFolders []string              `json:"workspace_folders"`
	Sent             uint64                `json:"sent"`
	Failed           uint64                `json:"failed"`
	Dropped          uint64                `json:"dropped"`
	LastError        string                `json:"last_error,omitempty"`
	Recent           []heartbeat.Heartbeat `json:"recent"`
}

// New returns a session for the current process.
func New(server, bucketID string, now time.Time) *Session {
	return &Session{
		ID:               uuid.NewString(),
		PID:              os.Getpid(),
		StartTime:        now,
		UpdatedAt:        now,
		Server:           server,
		BucketID:         bucketID,
		WorkspaceFolders: []string{},
		Recent:           []heartbeat.Heartbeat{},
	}
}

// Record appends hb to the recent ring, evicting the oldest entry beyond
// MaxRecent.
func (s *Session) Record(hb heartbeat.Heartbeat) {
	s.Recent = append(s.Recent, hb)
	if n := len(s.Recent) - MaxRecent; n > 0 {
		s.Recent = append(s.Recent[:0:0], s.Recent[n:]...)
	}
}

// Alive reports whether the owning process still exists.
func (s *Session) Alive() bool {
	return processAlive(s.PID)
}
