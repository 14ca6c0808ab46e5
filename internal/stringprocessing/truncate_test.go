package stringprocessing

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numberedLines(n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %03d", i)
	}
	return strings.Join(lines, "\n")
}

func TestTruncate_FitsUnchanged(t *testing.T) {
	text := numberedLines(5)
	res := Truncate(text, len(text))

	assert.False(t, res.Truncated)
	assert.Equal(t, text, res.Text)
	assert.Zero(t, res.OmittedLines)
	assert.Equal(t, len(text), res.OriginalLength)
}

func TestTruncate_KeepsHeadAndTail(t *testing.T) {
	text := numberedLines(100)
	res := Truncate(text, 200)

	require.True(t, res.Truncated)
	assert.True(t, strings.HasPrefix(res.Text, "line 000\nline 001"))
	assert.True(t, strings.HasSuffix(res.Text, "line 099"))
	assert.Contains(t, res.Text, OmissionMarker(res.OmittedLines))
	assert.LessOrEqual(t, len(res.Text), 200+len(OmissionMarker(res.OmittedLines)))

	shown := strings.Count(res.Text, "line ")
	assert.Equal(t, 100, shown+res.OmittedLines)
}

func TestTruncate_HeadGetsSeventyPercent(t *testing.T) {
	text := numberedLines(200) // 9 bytes per line including newline
	res := Truncate(text, 900)

	require.True(t, res.Truncated)
	head := strings.SplitN(res.Text, "\n... [", 2)[0]
	assert.LessOrEqual(t, len(head), 630)
	assert.Greater(t, len(head), 600)
}

func TestTruncate_OversizedSingleLine(t *testing.T) {
	text := strings.Repeat("é", 500)
	res := Truncate(text, 101)

	require.True(t, res.Truncated)
	head := strings.Split(res.Text, "\n")[0]
	assert.True(t, len(head) <= 70)
	assert.True(t, strings.HasPrefix(text, head), "head must be a clean prefix")
	assert.Zero(t, res.OmittedLines)
}

func TestTruncate_BoundProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 300; i++ {
		lineCount := rng.Intn(60) + 1
		lines := make([]string, lineCount)
		for j := range lines {
			lines[j] = strings.Repeat("x", rng.Intn(80))
		}
		text := strings.Join(lines, "\n")
		budget := rng.Intn(len(text) + 50)

		res := Truncate(text, budget)

		assert.Equal(t, len(text) > budget, res.Truncated, "budget %d len %d", budget, len(text))
		if res.Truncated {
			assert.LessOrEqual(t, len(res.Text), budget+len(OmissionMarker(res.OmittedLines)))
		} else {
			assert.Equal(t, text, res.Text)
		}
	}
}

func TestTruncate_ZeroBudget(t *testing.T) {
	tests := []string{"\nabc\ndef", "abc\ndef", "\n\n\n"}
	for _, text := range tests {
		t.Run(fmt.Sprintf("%q", text), func(t *testing.T) {
			res := Truncate(text, 0)

			require.True(t, res.Truncated)
			assert.Equal(t, OmissionMarker(res.OmittedLines), res.Text)
			assert.Equal(t, strings.Count(text, "\n")+1, res.OmittedLines)
		})
	}
}
