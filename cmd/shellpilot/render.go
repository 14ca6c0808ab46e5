package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"shellpilot/internal/orchestrator"
	"shellpilot/internal/shellintegration"
	"shellpilot/pkg/shelltypes"
)

// Output formats for results and snapshots.
const (
	formatText = "text"
	formatXML  = "xml"
	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	warnStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

func checkFormat(format string) error {
	switch format {
	case formatText, formatXML, formatJSON, formatYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q (want text, xml, json or yaml)", format)
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case string(shelltypes.ResultSuccess), string(orchestrator.MonitorCompleted):
		return successStyle
	case string(shelltypes.ResultError), string(orchestrator.MonitorClosed):
		return errorStyle
	case string(shelltypes.ResultRejected), string(shelltypes.ResultTimeout), string(orchestrator.MonitorCancelled):
		return warnStyle
	}
	return infoStyle
}

// renderResult writes res in format.
func renderResult(w io.Writer, res *shelltypes.ExecutionResult, format string) error {
	switch format {
	case formatText:
		_, err := io.WriteString(w, resultText(res))
		return err
	case formatXML:
		_, err := fmt.Fprintln(w, orchestrator.FormatResultXML(res))
		return err
	}
	return encode(w, res, format)
}

// renderSnapshot writes snap in format.
func renderSnapshot(w io.Writer, snap orchestrator.MonitorSnapshot, format string) error {
	switch format {
	case formatText:
		_, err := io.WriteString(w, snapshotText(snap))
		return err
	case formatXML:
		_, err := fmt.Fprintln(w, orchestrator.FormatSnapshotXML(snap))
		return err
	}
	return encode(w, snap, format)
}

func encode(w io.Writer, v any, format string) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	return checkFormat(format)
}

func resultText(res *shelltypes.ExecutionResult) string {
	var b strings.Builder

	details := []string{}
	if res.SessionName != "" {
		details = append(details, "session "+res.SessionName)
	}
	if res.Mode != shelltypes.ModeNone {
		details = append(details, "mode "+string(res.Mode))
	}
	if res.ExitCode != nil {
		details = append(details, fmt.Sprintf("exit %d", *res.ExitCode))
	}
	details = append(details, res.Elapsed.Round(time.Millisecond).String())

	b.WriteString(statusStyle(string(res.Status)).Render(strings.ToUpper(string(res.Status))))
	b.WriteString(" " + dimStyle.Render(strings.Join(details, " · ")) + "\n")

	writeOutput(&b, res.Output)
	if res.Filtered {
		b.WriteString(dimStyle.Render(fmt.Sprintf("[%d noise lines filtered]", res.FilteredLines)) + "\n")
	}
	if res.Truncated {
		b.WriteString(dimStyle.Render(fmt.Sprintf("[output truncated, %d lines omitted]", res.OmittedLines)) + "\n")
	}
	if res.Note != "" {
		b.WriteString(infoStyle.Render(res.Note) + "\n")
	}
	writeDiagnosis(&b, res.Diagnosis)
	return b.String()
}

func snapshotText(snap orchestrator.MonitorSnapshot) string {
	var b strings.Builder

	details := []string{"session " + snap.Session, snap.Elapsed.Round(time.Millisecond).String()}
	if snap.ExitCode != nil {
		details = append(details, fmt.Sprintf("exit %d", *snap.ExitCode))
	}
	b.WriteString(statusStyle(string(snap.State)).Render(strings.ToUpper(string(snap.State))))
	b.WriteString(" " + infoStyle.Render(snap.Command))
	b.WriteString(" " + dimStyle.Render(strings.Join(details, " · ")) + "\n")

	writeOutput(&b, snap.Output)
	if snap.Truncated {
		b.WriteString(dimStyle.Render(fmt.Sprintf("[output truncated, %d lines omitted]", snap.OmittedLines)) + "\n")
	}
	writeDiagnosis(&b, snap.Diagnosis)
	return b.String()
}

func writeOutput(b *strings.Builder, output string) {
	if output == "" {
		return
	}
	b.WriteString(output)
	if !strings.HasSuffix(output, "\n") {
		b.WriteString("\n")
	}
}

func writeDiagnosis(b *strings.Builder, d *shelltypes.Diagnosis) {
	if d == nil {
		return
	}
	b.WriteString(errorStyle.Render(d.ErrorType))
	b.WriteString(dimStyle.Render(fmt.Sprintf(" (%s, %s confidence)", d.Category, d.Confidence)) + "\n")
	b.WriteString("  " + d.Suggestion + "\n")
	for _, cmd := range d.RelatedCommands {
		b.WriteString("  " + successStyle.Render("$ "+cmd) + "\n")
	}
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

// sessionsTable lists sessions with their last command and exit code.
func sessionsTable(list []shelltypes.Session, monitored []string) string {
	if len(list) == 0 {
		return dimStyle.Render("no sessions") + "\n"
	}
	watching := make(map[string]bool, len(monitored))
	for _, name := range monitored {
		watching[name] = true
	}

	t := newTable("NAME", "STATUS", "LAST COMMAND", "EXIT", "ACTIVE")
	for _, s := range list {
		exit := "-"
		if s.LastExitCode != nil {
			exit = fmt.Sprint(*s.LastExitCode)
		}
		status := string(s.Status)
		if watching[s.Name] {
			status += " (monitored)"
		}
		active := "-"
		if !s.LastActiveAt.IsZero() {
			active = s.LastActiveAt.Format(time.TimeOnly)
		}
		t.Row(s.Name, status, s.LastCommand, exit, active)
	}
	return t.String() + "\n"
}

// shellsTable lists resolvable shells and what the protocol cache knows about them.
func shellsTable(locator shelltypes.ShellLocator, entries []shellintegration.CacheEntry) string {
	known := make(map[string]shellintegration.CacheEntry, len(entries))
	for _, e := range entries {
		known[e.Key.ShellPath] = e
	}

	t := newTable("SHELL", "PATH", "INTEGRATION")
	for _, kind := range locator.Available() {
		path, _ := locator.Resolve(kind)
		integration := "untested"
		if e, ok := known[path]; ok {
			integration = "unsupported"
			if e.Supported {
				integration = "supported"
			}
		}
		t.Row(kind, path, integration)
	}
	return t.String() + "\n"
}
