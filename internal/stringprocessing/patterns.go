package stringprocessing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PatternTable is the configuration data behind the pre-filter. Patterns are
// regular expressions matched case-insensitively against single lines. Noise
// wins over Important, so "npm WARN" lines are dropped even though they look
// like warnings.
type PatternTable struct {
	Important      []string `yaml:"important"`
	Noise          []string `yaml:"noise"`
	StackFrame     []string `yaml:"stack_frame"`
	MaxStackFrames int      `yaml:"max_stack_frames"`
}

// DefaultPatternTable returns the built-in tables.
func DefaultPatternTable() PatternTable {
	return PatternTable{
		Important: []string{
			`\b\w*error\b`,
			`\berr!`,
			`\bfail(ed|ure|ing)?\b`,
			`\bfatal\b`,
			`\b\w*exception\b`,
			`\bpanic:`,
			`\bwarn(ing)?\b`,
			`\bdeprecated\b`,
			`\bsuccess(ful|fully)?\b`,
			`\bpassed\b`,
			`\bcompleted?\b`,
			`\bdone\b`,
			`[✓✔✗✘]`,
			`\b\d{1,3}(\.\d+)?%`,
			`^#{1,6}\s+\S`,
			`^(={3,}|-{3,})`,
			`^\s*(tests?|test suites|snapshots):`,
		},
		Noise: []string{
			`^npm (warn|notice|http|timing|sill|verb)\b`,
			`^\s*(downloading|downloaded|fetching|resolving|collecting|using cached)\b`,
			`^\s*requirement already satisfied\b`,
			`^go: (downloading|finding|extracting)\b`,
			`^\s*progress: resolved \d+`,
			`^\s*\[\d+/\d+\]\s+(fetching|resolving|linking)\b`,
			`^\s*(get|head) https?://\S+ (200|304)\b`,
		},
		StackFrame: []string{
			`^\s+at\s+\S+`,
			`^\s+file ".*", line \d+`,
			`^\s+\S+\.go:\d+`,
			`^\s+\S+\.(java|kt|scala):\d+\)?$`,
		},
		MaxStackFrames: 3,
	}
}

// LoadPatternTable reads a YAML pattern table and layers it over the defaults:
// listed patterns are appended and a positive max_stack_frames replaces the
// default.
func LoadPatternTable(path string) (PatternTable, error) {
	table := DefaultPatternTable()

	data, err := os.ReadFile(path)
	if err != nil {
		return table, fmt.Errorf("failed to read pattern table %s: %w", path, err)
	}

	var extra PatternTable
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return table, fmt.Errorf("failed to parse pattern table %s: %w", path, err)
	}

	table.Important = append(table.Important, extra.Important...)
	table.Noise = append(table.Noise, extra.Noise...)
	table.StackFrame = append(table.StackFrame, extra.StackFrame...)
	if extra.MaxStackFrames > 0 {
		table.MaxStackFrames = extra.MaxStackFrames
	}
	return table, nil
}
