package stringprocessing

import (
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// Normalize cleans raw terminal output: escape sequences are stripped, line
// endings become "\n", runs of three or more blank lines collapse to a single
// blank line and outer whitespace is trimmed. Normalize is idempotent.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = ansi.Strip(text)
	text = stripControl(text)
	text = collapseBlankLines(text)

	return strings.TrimSpace(text)
}

// stripControl drops C0 control characters and DEL, keeping newlines and tabs.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))

	for i := 0; i < len(lines); {
		if strings.TrimSpace(lines[i]) != "" {
			out = append(out, lines[i])
			i++
			continue
		}

		j := i
		for j < len(lines) && strings.TrimSpace(lines[j]) == "" {
			j++
		}
		if j-i >= 3 {
			out = append(out, "")
		} else {
			out = append(out, lines[i:j]...)
		}
		i = j
	}

	return strings.Join(out, "\n")
}
