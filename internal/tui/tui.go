// Package tui provides the Bubble Tea dashboard behind `activitywatch-ls status --watch`.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/activitywatch-ls/internal/heartbeat"
	"github.com/fakeyudi/activitywatch-ls/internal/report"
	"github.com/fakeyudi/activitywatch-ls/internal/session"
)

// RefreshInterval is how often the dashboard re-probes the server when no
// session file changes.
const RefreshInterval = 5 * time.Second

// ── Styles ────────────

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245")).
				Background(lipgloss.Color("235")).
				Padding(0, 1)

	tabSepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238")).
			Background(lipgloss.Color("235"))

	sectionHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("178"))

	bulletStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205"))

	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	writeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)

	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("237"))
)

// ── Tab definitions ─────────────────

type tabID int

const (
	tabSummary tabID = iota
	tabSessions
	tabHeartbeats
	tabFiles
	tabCount
)

var tabNames = [tabCount]string{"Summary", "Sessions", "Heartbeats", "Files"}

// ── Messages ────────────────────

// Loader builds a fresh report.
type Loader func(ctx context.Context) (*report.Report, error)

// RefreshMsg asks the model to reload its report.
type RefreshMsg struct{}

type tickMsg struct{}

type reportMsg struct {
	report *report.Report
	err    error
}

// ── Model ────────────────────

// Model is the root Bubble Tea model for the dashboard.
type Model struct {
	report    *report.Report
	loadErr   error
	load      Loader
	activeTab tabID
	viewports [tabCount]viewport.Model
	width     int
	height    int
	ready     bool
	sortAsc   bool
	// Sessions tab: cursor position and expanded set, keyed by session ID
	cursor   int
	expanded map[string]bool
}

// New creates a dashboard model showing r. load may be nil, in which case
// refreshes are ignored.
func New(r *report.Report, load Loader) Model {
	if r == nil {
		r = &report.Report{}
	}
	return Model{
		report:   r,
		load:     load,
		expanded: make(map[string]bool),
	}
}

// ── Bubble Tea interface ───────────────

func (m Model) Init() tea.Cmd { return tick() }

func tick() tea.Cmd {
	return tea.Tick(RefreshInterval, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m Model) reload() tea.Cmd {
	if m.load == nil {
		return nil
	}
	load := m.load
	return func() tea.Msg {
		r, err := load(context.Background())
		return reportMsg{report: r, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab", "l", "right":
			m.activeTab = (m.activeTab + 1) % tabCount
			return m, nil
		case "shift+tab", "h", "left":
			m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
			return m, nil
		case "1", "2", "3", "4":
			m.activeTab = tabID(msg.String()[0] - '1')
			return m, nil
		case "r":
			return m, m.reload()
		case "s":
			if m.activeTab == tabHeartbeats {
				m.sortAsc = !m.sortAsc
				m.rebuild(tabHeartbeats)
				m.viewports[tabHeartbeats].GotoTop()
				return m, nil
			}
		case "up", "k":
			if m.activeTab == tabSessions && m.cursor > 0 {
				m.cursor--
				m.rebuild(tabSessions)
				return m, nil
			}
		case "down", "j":
			if m.activeTab == tabSessions && m.cursor < len(m.report.Sessions)-1 {
				m.cursor++
				m.rebuild(tabSessions)
				return m, nil
			}
		case "enter", " ":
			if m.activeTab == tabSessions && m.cursor < len(m.report.Sessions) {
				id := m.report.Sessions[m.cursor].ID
				m.expanded[id] = !m.expanded[id]
				m.rebuild(tabSessions)
				return m, nil
			}
		}
		var cmd tea.Cmd
		m.viewports[m.activeTab], cmd = m.viewports[m.activeTab].Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.initViewports()
		return m, nil

	case RefreshMsg:
		return m, m.reload()

	case tickMsg:
		return m, tea.Batch(m.reload(), tick())

	case reportMsg:
		m.loadErr = msg.err
		if msg.err == nil && msg.report != nil {
			m.report = msg.report
			if m.cursor >= len(m.report.Sessions) {
				m.cursor = max(len(m.report.Sessions)-1, 0)
			}
		}
		if m.ready {
			for i := tabID(0); i < tabCount; i++ {
				m.rebuild(i)
			}
		}
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}

	// ── Row 1: title bar ──────────────────────────────────────────────────────
	title := titleStyle.Width(m.width).Render("  activitywatch-ls  " + m.report.Server.URL)

	// ── Row 2: tab bar ────────────────────────────────────────────────────────
	var tabParts []string
	for i := tabID(0); i < tabCount; i++ {
		label := fmt.Sprintf(" %d %s ", i+1, tabNames[i])
		if i == m.activeTab {
			tabParts = append(tabParts, activeTabStyle.Render(label))
		} else {
			tabParts = append(tabParts, inactiveTabStyle.Render(label))
		}
		if i < tabCount-1 {
			tabParts = append(tabParts, tabSepStyle.Render("│"))
		}
	}
	tabRow := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Width(m.width).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, tabParts...))

	// ── Row 3…N-1: scrollable content ────────────────────────────────────────
	content := m.viewports[m.activeTab].View()

	// ── Row N: status / hint bar ──────────────────────────────────────────────
	hint := "  ←/→ tab  ↑/↓ scroll  1-4 jump  r refresh  q quit"
	switch m.activeTab {
	case tabHeartbeats:
		dir := "newest first"
		if m.sortAsc {
			dir = "oldest first"
		}
		hint += "  s sort (" + dir + ")"
	case tabSessions:
		hint += "  enter expand"
	}
	right := "updated " + m.report.GeneratedAt.Local().Format("15:04:05")
	if m.loadErr != nil {
		right = "refresh failed"
	}
	pad := m.width - lipgloss.Width(hint) - lipgloss.Width(right) - 2
	if pad < 1 {
		pad = 1
	}
	statusBar := statusBarStyle.Width(m.width).Render(hint + strings.Repeat(" ", pad) + right)

	return lipgloss.JoinVertical(lipgloss.Left, title, tabRow, content, statusBar)
}

// ── Viewport management ───────────────────────────────────────────────────────

func (m *Model) initViewports() {
	// title(1) + tabRow(1) + statusBar(1) = 3 fixed rows
	vpHeight := m.height - 3
	if vpHeight < 1 {
		vpHeight = 1
	}
	for i := tabID(0); i < tabCount; i++ {
		vp := viewport.New(m.width, vpHeight)
		vp.SetContent(m.renderTab(i))
		m.viewports[i] = vp
	}
}

func (m *Model) rebuild(t tabID) {
	m.viewports[t].SetContent(m.renderTab(t))
}

// ── Tab renderers ─────────────────────────────────────────────────────────────

func (m *Model) renderTab(t tabID) string {
	switch t {
	case tabSummary:
		return m.renderSummary()
	case tabSessions:
		return m.renderSessions()
	case tabHeartbeats:
		return m.renderHeartbeats()
	case tabFiles:
		return m.renderFiles()
	}
	return ""
}

func heading(s string) string {
	return "\n" + sectionHeader.Render("  "+s) + "\n\n"
}

func bullet(text string) string {
	return bulletStyle.Render("  •") + "  " + text + "\n"
}

func row(sb *strings.Builder, label, value string) {
	sb.WriteString(labelStyle.Render(fmt.Sprintf("  %-14s", label)) + "  " + value + "\n")
}

func (m *Model) renderSummary() string {
	r := m.report
	var sb strings.Builder
	sb.WriteString(heading("ActivityWatch Server"))

	row(&sb, "URL", r.Server.URL)
	if r.Server.Reachable {
		row(&sb, "Status", okStyle.Render("reachable"))
		row(&sb, "Version", r.Server.Version)
		row(&sb, "Hostname", r.Server.Hostname)
	} else {
		row(&sb, "Status", errStyle.Render("unreachable"))
		if r.Server.Error != "" {
			row(&sb, "Error", r.Server.Error)
		}
	}

	sent, failed, dropped := r.Totals()
	sb.WriteString(heading("Language Servers"))
	row(&sb, "Running", fmt.Sprintf("%d", len(r.Sessions)))
	row(&sb, "Sent", fmt.Sprintf("%d", sent))
	row(&sb, "Failed", fmt.Sprintf("%d", failed))
	row(&sb, "Dropped", fmt.Sprintf("%d", dropped))

	if m.loadErr != nil {
		sb.WriteString(heading("Refresh"))
		sb.WriteString(bullet(errStyle.Render(m.loadErr.Error())))
	}
	return sb.String()
}

func (m *Model) renderSessions() string {
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Sessions (%d)", len(m.report.Sessions))))
	if len(m.report.Sessions) == 0 {
		sb.WriteString(dimStyle.Render("  no language server running") + "\n")
		return sb.String()
	}
	for i, s := range m.report.Sessions {
		line := fmt.Sprintf("%-10s  %-8s  pid %-7d  sent %-5d failed %-5d dropped %d",
			shortID(s.ID), editorLabel(s), s.PID, s.Sent, s.Failed, s.Dropped)
		if i == m.cursor {
			sb.WriteString(selectedRowStyle.Render("▸ "+line) + "\n")
		} else {
			sb.WriteString("  " + line + "\n")
		}
		if !m.expanded[s.ID] {
			continue
		}
		sb.WriteString(indent(sessionDetail(s), "      "))
	}
	return sb.String()
}

func sessionDetail(s session.Session) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", dimStyle.Render("bucket "), s.BucketID)
	fmt.Fprintf(&sb, "%s %s\n", dimStyle.Render("server "), s.Server)
	fmt.Fprintf(&sb, "%s %s\n", dimStyle.Render("started"), timeStyle.Render(s.StartTime.Local().Format(time.DateTime)))
	for _, f := range s.WorkspaceFolders {
		fmt.Fprintf(&sb, "%s %s\n", dimStyle.Render("folder "), f)
	}
	if s.LastError != "" {
		fmt.Fprintf(&sb, "%s %s\n", dimStyle.Render("error  "), errStyle.Render(s.LastError))
	}
	return sb.String()
}

type recentBeat struct {
	session string
	hb      heartbeat.Heartbeat
}

func (m *Model) renderHeartbeats() string {
	var beats []recentBeat
	for _, s := range m.report.Sessions {
		for _, hb := range s.Recent {
			beats = append(beats, recentBeat{session: shortID(s.ID), hb: hb})
		}
	}
	sort.SliceStable(beats, func(i, j int) bool {
		if m.sortAsc {
			return beats[i].hb.Timestamp.Before(beats[j].hb.Timestamp)
		}
		return beats[i].hb.Timestamp.After(beats[j].hb.Timestamp)
	})

	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Recent Heartbeats (%d)", len(beats))))
	if len(beats) == 0 {
		sb.WriteString(dimStyle.Render("  nothing sent yet") + "\n")
		return sb.String()
	}
	for _, b := range beats {
		kind := dimStyle.Render("edit ")
		if b.hb.IsWrite {
			kind = writeStyle.Render("write")
		}
		lang := b.hb.Language
		if lang == "" {
			lang = "-"
		}
		fmt.Fprintf(&sb, "  %s  %s  %-12s %s %s\n",
			timeStyle.Render(b.hb.Timestamp.Local().Format("15:04:05")),
			kind, lang, b.hb.File,
			dimStyle.Render("["+b.session+"]"))
	}
	return sb.String()
}

func (m *Model) renderFiles() string {
	files := m.report.Files()
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Files (%d)", len(files))))
	if len(files) == 0 {
		sb.WriteString(dimStyle.Render("  nothing sent yet") + "\n")
		return sb.String()
	}
	for _, f := range files {
		fmt.Fprintf(&sb, "  %4d  %s  %s\n", f.Count,
			timeStyle.Render(f.LastSeen.Local().Format("15:04:05")), f.File)
	}
	return sb.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func editorLabel(s session.Session) string {
	if s.Editor == "" {
		return "?"
	}
	return s.Editor
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}

// Run starts the dashboard. The report is rebuilt whenever a session file
// in watchDir changes, and every RefreshInterval.
func Run(ctx context.Context, load Loader, watchDir string) error {
	r, err := load(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(New(r, load), tea.WithAltScreen(), tea.WithContext(ctx))
	if watchDir != "" {
		go func() {
			_ = session.Watch(ctx, watchDir, func() { p.Send(RefreshMsg{}) })
		}()
	}
	_, err = p.Run()
	return err
}
