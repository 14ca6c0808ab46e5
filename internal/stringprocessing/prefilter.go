package stringprocessing

import (
	"fmt"
	"regexp"
	"strings"
)

// anchorLines is how many leading and trailing lines are always kept.
const anchorLines = 3

// FilterResult describes the outcome of Filter.Apply. Filtered reports lines
// removed as verbose; Truncated reports lines dropped by the budget afterwards.
type FilterResult struct {
	Text          string
	Truncated     bool
	Filtered      bool
	OmittedLines  int
	FilteredLines int
	NoiseLines    int
}

// RemovalMarker is the line inserted where verbose lines were removed.
func RemovalMarker(n int) string {
	return fmt.Sprintf("... [%d verbose lines removed] ...", n)
}

// Filter is a compiled PatternTable.
type Filter struct {
	important      []*regexp.Regexp
	noise          []*regexp.Regexp
	stackFrames    []*regexp.Regexp
	maxStackFrames int
}

// NewFilter compiles table.
func NewFilter(table PatternTable) (*Filter, error) {
	f := &Filter{maxStackFrames: table.MaxStackFrames}
	var err error
	if f.important, err = compileAll(table.Important); err != nil {
		return nil, fmt.Errorf("important patterns: %w", err)
	}
	if f.noise, err = compileAll(table.Noise); err != nil {
		return nil, fmt.Errorf("noise patterns: %w", err)
	}
	if f.stackFrames, err = compileAll(table.StackFrame); err != nil {
		return nil, fmt.Errorf("stack frame patterns: %w", err)
	}
	return f, nil
}

// DefaultFilter returns a Filter built from DefaultPatternTable.
func DefaultFilter() *Filter {
	f, err := NewFilter(DefaultPatternTable())
	if err != nil {
		panic(err)
	}
	return f
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// IsImportant reports whether line survives pre-filtering on its own merit.
func (f *Filter) IsImportant(line string) bool {
	return !matchAny(f.noise, line) && matchAny(f.important, line)
}

// IsNoise reports whether line matches a known-verbose pattern.
func (f *Filter) IsNoise(line string) bool {
	return matchAny(f.noise, line)
}

func (f *Filter) isStackFrame(line string) bool {
	return matchAny(f.stackFrames, line)
}

func matchAny(res []*regexp.Regexp, line string) bool {
	for _, re := range res {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// Apply keeps the first and last three lines, every important interior line
// and the first frames of each stack trace, replaces everything else with a
// counted marker and finally truncates to budget if still needed.
func (f *Filter) Apply(text string, budget int) FilterResult {
	lines := strings.Split(text, "\n")
	if len(lines) <= 2*anchorLines {
		return fromTruncate(Truncate(text, budget))
	}

	interior := lines[anchorLines : len(lines)-anchorLines]
	kept := make([]string, 0, len(interior))
	removed, noise, frameRun := 0, 0, 0

	for _, line := range interior {
		if f.isStackFrame(line) {
			frameRun++
			if frameRun <= f.maxStackFrames {
				kept = append(kept, line)
			} else {
				removed++
				noise++
			}
			continue
		}
		frameRun = 0

		switch {
		case f.IsNoise(line):
			removed++
			noise++
		case f.IsImportant(line):
			kept = append(kept, line)
		default:
			removed++
		}
	}

	out := make([]string, 0, len(kept)+2*anchorLines+1)
	out = append(out, lines[:anchorLines]...)
	out = append(out, kept...)
	if removed > 0 {
		out = append(out, RemovalMarker(removed))
	}
	out = append(out, lines[len(lines)-anchorLines:]...)

	tr := Truncate(strings.Join(out, "\n"), budget)
	result := fromTruncate(tr)
	result.Filtered = removed > 0
	result.FilteredLines = removed
	result.NoiseLines = noise
	return result
}

func fromTruncate(tr TruncateResult) FilterResult {
	return FilterResult{
		Text:         tr.Text,
		Truncated:    tr.Truncated,
		OmittedLines: tr.OmittedLines,
	}
}
