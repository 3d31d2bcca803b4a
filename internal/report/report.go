// Package report builds the status snapshot shown by `activitywatch-ls status`.
package report

import (
	"context"
	"sort"
	"time"

	"github.com/fakeyudi/activitywatch-ls/internal/aw"
	"github.com/fakeyudi/activitywatch-ls/internal/session"
)

// Report is a point-in-time view of the ActivityWatch server and every
// language server session on this machine.
type Report struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Server      ServerStatus      `json:"server"`
	Sessions    []session.Session `json:"sessions"`
}

// ServerStatus is the result of probing the ActivityWatch server.
type ServerStatus struct {
	URL       string `json:"url"`
	Reachable bool   `json:"reachable"`
	Version   string `json:"version,omitempty"`
	Hostname  string `json:"hostname,omitempty"`
	Error     string `json:"error,omitempty"`
}

// FileCount is the number of recent heartbeats for one file.
type FileCount struct {
	File     string    `json:"file"`
	Count    int       `json:"count"`
	LastSeen time.Time `json:"last_seen"`
}

// Prober fetches server info. *aw.Client implements it.
type Prober interface {
	Info(ctx context.Context) (*aw.Info, error)
	BaseURL() string
}

// Lister returns stored sessions. session.SessionStore implements it.
type Lister interface {
	List() ([]*session.Session, error)
}

// Build probes the server and collects sessions. A failed probe is recorded
// in the report rather than returned.
func Build(ctx context.Context, prober Prober, sessions Lister, now time.Time) (*Report, error) {
	r := &Report{GeneratedAt: now, Sessions: []session.Session{}}

	if prober != nil {
		r.Server.URL = prober.BaseURL()
		info, err := prober.Info(ctx)
		if err != nil {
			r.Server.Error = err.Error()
		} else {
			r.Server.Reachable = true
			r.Server.Version = info.Version
			r.Server.Hostname = info.Hostname
		}
	}

	if sessions != nil {
		list, err := sessions.List()
		if err != nil {
			return nil, err
		}
		for _, s := range list {
			r.Sessions = append(r.Sessions, *s)
		}
	}
	return r, nil
}

// Totals sums the counters of every session.
func (r *Report) Totals() (sent, failed, dropped uint64) {
	for _, s := range r.Sessions {
		sent += s.Sent
		failed += s.Failed
		dropped += s.Dropped
	}
	return sent, failed, dropped
}

// Files counts recent heartbeats per file across sessions, busiest first.
func (r *Report) Files() []FileCount {
	byFile := make(map[string]*FileCount)
	for _, s := range r.Sessions {
		for _, hb := range s.Recent {
			fc, ok := byFile[hb.File]
			if !ok {
				fc = &FileCount{File: hb.File}
				byFile[hb.File] = fc
			}
			fc.Count++
			if hb.Timestamp.After(fc.LastSeen) {
				fc.LastSeen = hb.Timestamp
			}
		}
	}
	out := make([]FileCount, 0, len(byFile))
	for _, fc := range byFile {
		out = append(out, *fc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].File < out[j].File
	})
	return out
}
