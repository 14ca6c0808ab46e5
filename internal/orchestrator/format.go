package orchestrator

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"shellpilot/pkg/shelltypes"
)

// FormatResultXML renders res as markup for an agent transcript. Every
// free-text field is escaped.
func FormatResultXML(res *shelltypes.ExecutionResult) string {
	if res == nil {
		return "<execution_result/>"
	}

	var b strings.Builder
	b.WriteString("<execution_result")
	attr(&b, "status", string(res.Status))
	if res.SessionName != "" {
		attr(&b, "session", res.SessionName)
	}
	if res.Mode != shelltypes.ModeNone {
		attr(&b, "mode", string(res.Mode))
	}
	if res.ExitCode != nil {
		attr(&b, "exit_code", strconv.Itoa(*res.ExitCode))
	}
	attr(&b, "elapsed_ms", strconv.FormatInt(res.ElapsedMs(), 10))
	b.WriteString(">\n")

	b.WriteString("<output")
	if res.Truncated {
		attr(&b, "truncated", "true")
		attr(&b, "omitted_lines", strconv.Itoa(res.OmittedLines))
	}
	if res.Filtered {
		attr(&b, "filtered_lines", strconv.Itoa(res.FilteredLines))
	}
	b.WriteString(">")
	b.WriteString(html.EscapeString(res.Output))
	b.WriteString("</output>\n")

	if res.Note != "" {
		element(&b, "note", res.Note)
	}
	if d := res.Diagnosis; d != nil {
		writeDiagnosis(&b, d)
	}
	b.WriteString("</execution_result>")
	return b.String()
}

// FormatSnapshotXML renders a monitoring snapshot the same way.
func FormatSnapshotXML(snap MonitorSnapshot) string {
	var b strings.Builder
	b.WriteString("<monitor_snapshot")
	attr(&b, "session", snap.Session)
	attr(&b, "state", string(snap.State))
	if snap.ExitCode != nil {
		attr(&b, "exit_code", strconv.Itoa(*snap.ExitCode))
	}
	attr(&b, "elapsed_ms", strconv.FormatInt(snap.Elapsed.Milliseconds(), 10))
	b.WriteString(">\n")
	element(&b, "command", snap.Command)
	b.WriteString("<output")
	if snap.Truncated {
		attr(&b, "truncated", "true")
		attr(&b, "omitted_lines", strconv.Itoa(snap.OmittedLines))
	}
	b.WriteString(">")
	b.WriteString(html.EscapeString(snap.Output))
	b.WriteString("</output>\n")
	if snap.Diagnosis != nil {
		writeDiagnosis(&b, snap.Diagnosis)
	}
	b.WriteString("</monitor_snapshot>")
	return b.String()
}

func writeDiagnosis(b *strings.Builder, d *shelltypes.Diagnosis) {
	b.WriteString("<diagnosis")
	attr(b, "error_type", d.ErrorType)
	attr(b, "category", d.Category)
	attr(b, "confidence", string(d.Confidence))
	b.WriteString(">\n")
	element(b, "suggestion", d.Suggestion)
	if len(d.RelatedCommands) > 0 {
		b.WriteString("<related_commands>\n")
		for _, c := range d.RelatedCommands {
			element(b, "command", c)
		}
		b.WriteString("</related_commands>\n")
	}
	b.WriteString("</diagnosis>\n")
}

func attr(b *strings.Builder, name, value string) {
	fmt.Fprintf(b, ` %s="%s"`, name, html.EscapeString(value))
}

func element(b *strings.Builder, name, text string) {
	fmt.Fprintf(b, "<%s>%s</%s>\n", name, html.EscapeString(text), name)
}
