package history

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shellpilot/pkg/shelltypes"
)

func TestStore_AnalyzeCounts(t *testing.T) {
	s, _ := seededStore(t)

	a, err := s.Analyze(AnalyzeOptions{GroupBySession: true})
	require.NoError(t, err)

	assert.Equal(t, Counts{Total: 5, Errors: 2, Warnings: 1, Success: 1, Info: 1}, a.Counts)

	want := map[string]Counts{
		"api": {Total: 3, Errors: 2, Info: 1},
		"web": {Total: 2, Warnings: 1, Success: 1},
	}
	if diff := cmp.Diff(want, a.BySession); diff != "" {
		t.Errorf("BySession mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, epoch, a.From)
	assert.Equal(t, 5, a.Sampled)
}

func TestStore_AnalyzeWithoutGrouping(t *testing.T) {
	s, _ := seededStore(t)

	a, err := s.Analyze(AnalyzeOptions{Filter: RecordFilter{Sessions: []string{"web"}}})
	require.NoError(t, err)
	assert.Nil(t, a.BySession)
	assert.Equal(t, 2, a.Counts.Total)
}

func TestStore_AnalyzePatterns(t *testing.T) {
	s := NewStore()
	s.Append(shelltypes.OutputRecord{SessionName: "api", Content: `response: {"status": "ok", "items": [1, 2]} done`})
	s.Append(shelltypes.OutputRecord{SessionName: "api", Content: "not json: {broken"})
	s.Append(shelltypes.OutputRecord{SessionName: "api", Content: "<config><port>8080</port></config>"})
	s.Append(shelltypes.OutputRecord{SessionName: "api", Content: "see https://example.com/docs?page=2 for details"})
	s.Append(shelltypes.OutputRecord{SessionName: "api", Content: "compiled ./src/server/index.ts"})
	s.Append(shelltypes.OutputRecord{SessionName: "api", Content: "127.0.0.1 - GET /api/v1/users 200"})

	a, err := s.Analyze(AnalyzeOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, a.Patterns[PatternJSON].Records)
	assert.Equal(t, []string{`{"status": "ok", "items": [1, 2]}`}, a.Patterns[PatternJSON].Samples)

	assert.Equal(t, 1, a.Patterns[PatternXML].Records)
	assert.Equal(t, "<config><port>8080</port></config>", a.Patterns[PatternXML].Samples[0])

	assert.Equal(t, []string{"https://example.com/docs?page=2"}, a.Patterns[PatternURL].Samples)
	assert.Contains(t, a.Patterns[PatternFilePath].Samples, "./src/server/index.ts")
	assert.Equal(t, []string{"GET /api/v1/users"}, a.Patterns[PatternAPICall].Samples)
}

func TestFindJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{name: "nested in unclosed text", content: `log { level=info payload={"id": 7} more`, want: []string{`{"id": 7}`}},
		{name: "outer wins over inner", content: `{"a": {"b": [1]}}`, want: []string{`{"a": {"b": [1]}}`}},
		{name: "invalid outer keeps valid inner", content: `{state: {"ok": true}}`, want: []string{`{"ok": true}`}},
		{name: "brackets inside strings", content: `{"msg": "a } b ["}`, want: []string{`{"msg": "a } b ["}`}},
		{name: "stray quote does not hide later json", content: "{ it\"s\n[1, 2]", want: []string{"[1, 2]"}},
		{name: "empty array ignored", content: "[] and {}", want: []string{"{}"}},
		{name: "nothing", content: "{{{ [[[", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, findJSON(tt.content))
		})
	}
}

func TestStore_AnalyzeBracketHeavyOutputIsLinear(t *testing.T) {
	s := NewStore()
	s.Append(shelltypes.OutputRecord{SessionName: "build", Content: strings.Repeat("{", 200000)})
	s.Append(shelltypes.OutputRecord{SessionName: "build", Content: strings.Repeat("[{", 100000) + `{"ok": 1}`})
	s.Append(shelltypes.OutputRecord{SessionName: "build", Content: strings.Repeat("{x}", 70000)})
	s.Append(shelltypes.OutputRecord{SessionName: "build", Content: strings.Repeat("<a>", 70000) + "</a>"})

	start := time.Now()
	a, err := s.Analyze(AnalyzeOptions{})
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 4, a.Sampled)
	assert.Equal(t, 1, a.Patterns[PatternXML].Records)
}

func TestStore_AnalyzeSamplesMostRecent(t *testing.T) {
	s := NewStore()
	s.Append(shelltypes.OutputRecord{SessionName: "a", Content: "https://old.example.com"})
	for i := 0; i < 3; i++ {
		s.Append(shelltypes.OutputRecord{SessionName: "a", Content: "plain"})
	}

	a, err := s.Analyze(AnalyzeOptions{SampleSize: 3})
	require.NoError(t, err)
	assert.Equal(t, 4, a.Counts.Total)
	assert.Equal(t, 3, a.Sampled)
	assert.Zero(t, a.Patterns[PatternURL].Records)
}

func TestStore_AnalyzeInvalidRange(t *testing.T) {
	s := NewStore()
	_, err := s.Analyze(AnalyzeOptions{Filter: RecordFilter{Range: TimeRange{Name: "bogus"}}})
	assert.ErrorIs(t, err, ErrInvalidRange)
}
