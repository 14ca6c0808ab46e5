package stringprocessing

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func installLog() string {
	lines := []string{
		"> app@1.0.0 build",
		"> tsc && node build.js",
		"",
		"npm WARN deprecated left-pad@1.0.0: use String.prototype.padStart",
		"npm http fetch GET 200 https://registry.npmjs.org/react 12ms",
		"Downloading react-18.2.0.tgz",
		"compiling module graph",
		"Build progress 45%",
		"error TS2304: Cannot find name 'foo'.",
		"TypeError: x is not a function",
		"    at one (/app/a.js:1:1)",
		"    at two (/app/b.js:2:2)",
		"    at three (/app/c.js:3:3)",
		"    at four (/app/d.js:4:4)",
		"    at five (/app/e.js:5:5)",
		"## Summary",
		"some neutral chatter",
		"Tests: 3 failed, 10 passed",
		"tail one",
		"tail two",
		"tail three",
	}
	return strings.Join(lines, "\n")
}

func TestFilter_Apply(t *testing.T) {
	f := DefaultFilter()
	res := f.Apply(installLog(), 10000)

	assert.True(t, res.Filtered)
	assert.False(t, res.Truncated)

	for _, want := range []string{
		"> app@1.0.0 build",
		"Build progress 45%",
		"error TS2304: Cannot find name 'foo'.",
		"    at one (/app/a.js:1:1)",
		"    at three (/app/c.js:3:3)",
		"## Summary",
		"Tests: 3 failed, 10 passed",
		"tail three",
	} {
		assert.Contains(t, res.Text, want)
	}

	for _, gone := range []string{"npm WARN", "npm http fetch", "Downloading", "at four", "at five", "neutral chatter"} {
		assert.NotContains(t, res.Text, gone)
	}

	// npm WARN, npm http, Downloading, frames four and five
	assert.Equal(t, 5, res.NoiseLines)
	// plus "compiling module graph" and "some neutral chatter"
	assert.Equal(t, 7, res.FilteredLines)
	assert.Contains(t, res.Text, RemovalMarker(7))
}

func TestFilter_ShortInputIsOnlyTruncated(t *testing.T) {
	f := DefaultFilter()
	text := "a\nnpm WARN x\nc"

	res := f.Apply(text, 1000)
	assert.Equal(t, text, res.Text)
	assert.False(t, res.Filtered)
	assert.False(t, res.Truncated)
}

func TestFilter_TruncatesAfterFiltering(t *testing.T) {
	f := DefaultFilter()
	lines := []string{"h1", "h2", "h3"}
	for i := 0; i < 200; i++ {
		lines = append(lines, fmt.Sprintf("error %03d happened", i))
	}
	lines = append(lines, "t1", "t2", "t3")

	res := f.Apply(strings.Join(lines, "\n"), 500)
	assert.True(t, res.Truncated)
	assert.False(t, res.Filtered)
	assert.Positive(t, res.OmittedLines)
}

func TestFilter_NeverSilentlyDropsImportantLines(t *testing.T) {
	f := DefaultFilter()
	text := installLog()
	lines := strings.Split(text, "\n")

	for _, budget := range []int{50, 120, 250, 400, 10000} {
		res := f.Apply(text, budget)
		missing := 0
		for _, line := range lines[anchorLines : len(lines)-anchorLines] {
			if f.IsImportant(line) && !strings.Contains(res.Text, line) {
				missing++
			}
		}
		if missing > 0 {
			assert.GreaterOrEqual(t, res.OmittedLines, missing, "budget %d", budget)
		}
	}
}

func TestNewFilter_InvalidPattern(t *testing.T) {
	table := DefaultPatternTable()
	table.Noise = append(table.Noise, "([unclosed")

	_, err := NewFilter(table)
	assert.Error(t, err)
}

func TestLoadPatternTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.yaml")
	content := "noise:\n  - '^\\s*chatter\\b'\nimportant:\n  - '\\bmilestone\\b'\nmax_stack_frames: 1\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	table, err := LoadPatternTable(path)
	require.NoError(t, err)
	assert.Equal(t, 1, table.MaxStackFrames)
	assert.Len(t, table.Noise, len(DefaultPatternTable().Noise)+1)

	f, err := NewFilter(table)
	require.NoError(t, err)
	assert.True(t, f.IsNoise("chatter about things"))
	assert.True(t, f.IsImportant("reached milestone 3"))
}

func TestLoadPatternTable_Missing(t *testing.T) {
	table, err := LoadPatternTable(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
	assert.Equal(t, DefaultPatternTable().MaxStackFrames, table.MaxStackFrames)
}
