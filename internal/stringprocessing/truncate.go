package stringprocessing

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// headShare is the fraction of the budget spent on leading lines.
const headShare = 0.7

// TruncateResult describes the outcome of Truncate.
type TruncateResult struct {
	Text           string
	Truncated      bool
	OmittedLines   int
	OriginalLength int
}

// OmissionMarker is the line inserted where lines were dropped.
func OmissionMarker(n int) string {
	return fmt.Sprintf("... [%d more lines omitted] ...", n)
}

// Truncate bounds text to budget bytes, keeping the first ~70% of the budget as
// complete leading lines and filling the rest with trailing lines. The result
// never exceeds budget plus the length of the omission marker.
func Truncate(text string, budget int) TruncateResult {
	result := TruncateResult{Text: text, OriginalLength: len(text)}
	if budget < 0 {
		budget = 0
	}
	if len(text) <= budget {
		return result
	}

	lines := strings.Split(text, "\n")
	headBudget := int(float64(budget) * headShare)

	var head []string
	used := 0
	for _, line := range lines {
		cost := len(line)
		if len(head) > 0 {
			cost++ // joining newline
		}
		// the newline after the head must fit the budget too
		if used+cost > headBudget || used+cost+1 > budget {
			break
		}
		head = append(head, line)
		used += cost
	}

	// A single oversized first line would otherwise leave the head empty.
	partialHead := false
	if len(head) == 0 && headBudget > 0 {
		head = append(head, cutUTF8(lines[0], headBudget))
		used = len(head[0])
		partialHead = true
	}

	// one byte is reserved for the newline after the head
	remaining := budget - used - 1
	var tail []string
	tailUsed := 0
	for i := len(lines) - 1; i >= len(head); i-- {
		cost := len(lines[i]) + 1
		if tailUsed+cost > remaining {
			break
		}
		tail = append([]string{lines[i]}, tail...)
		tailUsed += cost
	}

	omitted := len(lines) - len(head) - len(tail)
	if partialHead {
		// the cut first line is shown, just not in full
		omitted = len(lines) - 1 - len(tail)
	}

	parts := make([]string, 0, 3)
	if len(head) > 0 {
		parts = append(parts, strings.Join(head, "\n"))
	}
	parts = append(parts, OmissionMarker(omitted))
	if len(tail) > 0 {
		parts = append(parts, strings.Join(tail, "\n"))
	}

	result.Text = strings.Join(parts, "\n")
	result.Truncated = true
	result.OmittedLines = omitted
	return result
}

// cutUTF8 returns the longest prefix of s no longer than n bytes that does not
// split a rune.
func cutUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
