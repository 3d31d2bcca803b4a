package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"
)

// Renderer serializes a Report to bytes.
type Renderer interface {
	Render(r *Report) ([]byte, error)
}

// ForFormat returns the renderer for "text", "markdown" or "json".
func ForFormat(format string) (Renderer, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return &TextRenderer{}, nil
	case "markdown", "md":
		return &MarkdownRenderer{}, nil
	case "json":
		return &JSONRenderer{}, nil
	}
	return nil, fmt.Errorf("unknown format %q (want text, markdown or json)", format)
}

// JSONRenderer renders a Report as indented JSON.
type JSONRenderer struct{}

func (JSONRenderer) Render(r *Report) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// TextRenderer renders a compact terminal summary.
type TextRenderer struct{}

func (TextRenderer) Render(r *Report) ([]byte, error) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "ActivityWatch: %s\n", serverLine(r.Server))

	if len(r.Sessions) == 0 {
		sb.WriteString("No running language servers.\n")
		return []byte(sb.String()), nil
	}

	sent, failed, dropped := r.Totals()
	fmt.Fprintf(&sb, "Sessions: %d  sent: %d  failed: %d  dropped: %d\n\n", len(r.Sessions), sent, failed, dropped)

	tw := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PID\tEDITOR\tUPTIME\tSENT\tFAILED\tLAST FILE")
	for _, s := range r.Sessions {
		last := "-"
		if n := len(s.Recent); n > 0 {
			last = s.Recent[n-1].File
		}
		editor := s.Editor
		if editor == "" {
			editor = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%s\n",
			s.PID, editor, r.GeneratedAt.Sub(s.StartTime).Truncate(time.Second), s.Sent, s.Failed, last)
	}
	if err := tw.Flush(); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

// MarkdownRenderer renders a Report as a Markdown document.
type MarkdownRenderer struct{}

func (MarkdownRenderer) Render(r *Report) ([]byte, error) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# activitywatch-ls status: %s\n\n", r.GeneratedAt.Format("2006-01-02 15:04:05 MST"))

	// ## Server
	sb.WriteString("## Server\n\n")
	fmt.Fprintf(&sb, "- %s\n\n", serverLine(r.Server))

	// ## Sessions
	sb.WriteString("## Sessions\n\n")
	if len(r.Sessions) == 0 {
		sb.WriteString("_No running language servers._\n\n")
	} else {
		sb.WriteString("| PID | Editor | Started | Bucket | Sent | Failed | Dropped |\n")
		sb.WriteString("|-----|--------|---------|--------|------|--------|---------|\n")
		for _, s := range r.Sessions {
			fmt.Fprintf(&sb, "| %d | %s | %s | %s | %d | %d | %d |\n",
				s.PID,
				s.Editor,
				s.StartTime.Format("2006-01-02 15:04:05"),
				s.BucketID,
				s.Sent, s.Failed, s.Dropped,
			)
		}
		sb.WriteString("\n")
	}

	// ## Files
	sb.WriteString("## Files\n\n")
	files := r.Files()
	if len(files) == 0 {
		sb.WriteString("_No heartbeats recorded._\n")
	} else {
		sb.WriteString("| File | Heartbeats | Last Seen |\n")
		sb.WriteString("|------|------------|-----------|\n")
		for _, fc := range files {
			fmt.Fprintf(&sb, "| %s | %d | %s |\n", fc.File, fc.Count, fc.LastSeen.Format("2006-01-02 15:04:05"))
		}
	}
	return []byte(sb.String()), nil
}

func serverLine(s ServerStatus) string {
	if !s.Reachable {
		if s.Error == "" {
			return s.URL + " (not checked)"
		}
		return fmt.Sprintf("%s unreachable: %s", s.URL, s.Error)
	}
	line := s.URL + " ok"
	if s.Version != "" {
		line += " (" + s.Version
		if s.Hostname != "" {
			line += " on " + s.Hostname
		}
		line += ")"
	}
	return line
}
