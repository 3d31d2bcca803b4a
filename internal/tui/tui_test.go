package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fakeyudi/activitywatch-ls/internal/heartbeat"
	"github.com/fakeyudi/activitywatch-ls/internal/report"
	"github.com/fakeyudi/activitywatch-ls/internal/session"
)

func sampleReport() *report.Report {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &report.Report{
		GeneratedAt: t0,
		Server:      report.ServerStatus{URL: "http://127.0.0.1:5600", Reachable: true, Version: "v0.13.2", Hostname: "box"},
		Sessions: []session.Session{{
			ID:       "0123456789abcdef",
			PID:      42,
			Editor:   "Zed",
			BucketID: "aw-watcher-zed_box",
			Sent:     2,
			Recent: []heartbeat.Heartbeat{
				{Timestamp: t0, File: "/src/a.go", Language: "go"},
				{Timestamp: t0.Add(time.Minute), File: "/src/b.rs", Language: "rust", IsWrite: true},
			},
		}},
	}
}

func sized(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(Model)
}

func key(m Model, k string) Model {
	var msg tea.KeyMsg
	switch k {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		msg = tea.KeyMsg{Type: tea.KeyTab}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
	}
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestViewBeforeSize(t *testing.T) {
	if got := New(nil, nil).View(); got != "Loading…" {
		t.Errorf("View = %q", got)
	}
}

func TestTabsRenderReport(t *testing.T) {
	m := sized(t, New(sampleReport(), nil))

	if v := m.View(); !strings.Contains(v, "reachable") || !strings.Contains(v, "v0.13.2") {
		t.Errorf("summary tab missing server info:\n%s", v)
	}

	m = key(m, "2")
	if v := m.View(); !strings.Contains(v, "01234567") || !strings.Contains(v, "Zed") {
		t.Errorf("sessions tab missing session:\n%s", v)
	}
	m = key(m, "enter")
	if v := m.View(); !strings.Contains(v, "aw-watcher-zed_box") {
		t.Errorf("expanded session should show bucket:\n%s", v)
	}

	m = key(m, "3")
	v := m.View()
	if !strings.Contains(v, "/src/a.go") || !strings.Contains(v, "write") {
		t.Errorf("heartbeats tab:\n%s", v)
	}
	if strings.Index(v, "/src/b.rs") > strings.Index(v, "/src/a.go") {
		t.Error("heartbeats should be newest first")
	}
	m = key(m, "s")
	v = m.View()
	if strings.Index(v, "/src/a.go") > strings.Index(v, "/src/b.rs") {
		t.Error("s should flip to oldest first")
	}

	m = key(m, "tab")
	if m.activeTab != tabFiles {
		t.Fatalf("activeTab = %d, want files", m.activeTab)
	}
	if v := m.View(); !strings.Contains(v, "Files (2)") {
		t.Errorf("files tab:\n%s", v)
	}
}

func TestRefreshReplacesReport(t *testing.T) {
	calls := 0
	load := func(ctx context.Context) (*report.Report, error) {
		calls++
		return &report.Report{Server: report.ServerStatus{URL: "http://other:5600"}}, nil
	}
	m := sized(t, New(sampleReport(), load))

	_, cmd := m.Update(RefreshMsg{})
	if cmd == nil {
		t.Fatal("refresh should return a load command")
	}
	next, _ := m.Update(cmd())
	m = next.(Model)
	if calls != 1 {
		t.Errorf("loader called %d times", calls)
	}
	if m.report.Server.URL != "http://other:5600" {
		t.Errorf("report not replaced: %+v", m.report.Server)
	}
	if m.cursor != 0 {
		t.Errorf("cursor = %d", m.cursor)
	}
}

func TestRefreshErrorKeepsReport(t *testing.T) {
	load := func(ctx context.Context) (*report.Report, error) { return nil, errors.New("disk gone") }
	m := sized(t, New(sampleReport(), load))
	next, _ := m.Update(RefreshMsg{})
	next, _ = next.(Model).Update(reportMsg{err: errors.New("disk gone")})
	m = next.(Model)
	if m.report.Server.Version != "v0.13.2" {
		t.Error("failed refresh should keep the previous report")
	}
	if v := m.View(); !strings.Contains(v, "refresh failed") {
		t.Errorf("status bar should flag the failure:\n%s", v)
	}
}
