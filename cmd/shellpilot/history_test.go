package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shellpilot/internal/history"
	"shellpilot/internal/testutils"
	"shellpilot/pkg/shelltypes"
)

var historyStart = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func seededHistory(t *testing.T) (*history.Store, *testutils.ManualClock) {
	t.Helper()
	clock := testutils.NewManualClock(historyStart)
	store := history.NewStore(history.WithClock(clock.Now))

	add := func(session, source string, sev shelltypes.Severity, content string) {
		store.Append(shelltypes.OutputRecord{SessionName: session, Source: source, Command: "npm start", Severity: sev, Content: content})
		clock.Advance(time.Minute)
	}
	add("api", shelltypes.SourceCommand, shelltypes.SeverityInfo, "$ npm start")
	add("api", shelltypes.SourceOutput, shelltypes.SeverityError, "listening\nError: listen EADDRINUSE :::3000\nat Server.listen")
	add("web", shelltypes.SourceOutput, shelltypes.SeveritySuccess, "GET /api/v1/users 200\nready")
	add("api", shelltypes.SourceDiagnosis, shelltypes.SeverityError, "PORT_IN_USE: Port 3000 is already in use")
	return store, clock
}

func TestHistorySearch(t *testing.T) {
	store, clock := seededHistory(t)

	tests := []struct {
		name     string
		args     []string
		contains []string
		excludes []string
		err      string
	}{
		{
			name:     "keyword",
			args:     []string{"3000"},
			contains: []string{"#2 [api] output:2", "> Error: listen EADDRINUSE :::3000", "#4 [api] diagnosis:1", "2 matches"},
		},
		{
			name:     "context lines",
			args:     []string{"-C", "1", "EADDRINUSE"},
			contains: []string{"  listening", "> Error: listen EADDRINUSE :::3000", "  at Server.listen", "1 matches"},
		},
		{
			name:     "session filter",
			args:     []string{"--session", "web", "ready"},
			contains: []string{"#3 [web] output:2", "1 matches"},
		},
		{
			name:     "severity filter",
			args:     []string{"--severity", "success", "3000"},
			contains: []string{"no matches"},
		},
		{
			name:     "regex",
			args:     []string{"-e", `GET\s+/api/v\d+`},
			contains: []string{"> GET /api/v1/users 200"},
		},
		{
			name:     "cap",
			args:     []string{"-m", "1", "3000"},
			contains: []string{"showing 1 of 2 matches"},
			excludes: []string{"PORT_IN_USE"},
		},
		{
			name:     "since",
			args:     []string{"--since", "90s", "3000"},
			contains: []string{"#4 [api]", "1 matches"},
			excludes: []string{"EADDRINUSE"},
		},
		{name: "invalid regex", args: []string{"-e", "("}, err: "invalid search query"},
		{name: "range and since", args: []string{"--range", "last_hour", "--since", "1m", "x"}, err: "either --range or --since"},
		{name: "unknown flag", args: []string{"--nope", "x"}, err: "unknown flag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := historySearch(store, tt.args, &buf, clock.Now())
			if tt.err != "" {
				assert.ErrorContains(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, buf.String(), want)
			}
			for _, unwanted := range tt.excludes {
				assert.NotContains(t, buf.String(), unwanted)
			}
		})
	}
}

func TestHistorySearch_Help(t *testing.T) {
	store, clock := seededHistory(t)

	var buf bytes.Buffer
	require.NoError(t, historySearch(store, []string{"--help"}, &buf, clock.Now()))
	assert.Contains(t, buf.String(), "--regex")
	assert.Contains(t, buf.String(), "--severity")
}

func TestHistoryAnalyze(t *testing.T) {
	store, clock := seededHistory(t)

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, historyAnalyze(store, []string{"--by-session"}, &buf, clock.Now()))
		out := buf.String()
		assert.Contains(t, out, "4 records: 2 errors, 0 warnings, 1 success, 1 info")
		assert.Regexp(t, `api\s*│\s*3\s*│\s*2`, out)
		assert.Contains(t, out, "api_call")
		assert.Contains(t, out, "GET /api/v1/users")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, historyAnalyze(store, []string{"-o", "json", "--session", "web"}, &buf, clock.Now()))
		var got history.Analysis
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, history.Counts{Total: 1, Success: 1}, got.Counts)
	})

	t.Run("xml is refused", func(t *testing.T) {
		err := historyAnalyze(store, []string{"-o", "xml"}, &bytes.Buffer{}, clock.Now())
		assert.Error(t, err)
	})

	t.Run("invalid range", func(t *testing.T) {
		err := historyAnalyze(store, []string{"--range", "last_century"}, &bytes.Buffer{}, clock.Now())
		assert.ErrorIs(t, err, history.ErrInvalidRange)
	})
}

func TestHistoryExport(t *testing.T) {
	store, clock := seededHistory(t)

	t.Run("stdout", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, historyExport(store, []string{"--session", "web"}, &buf, clock.Now()))
		want, err := store.Export(history.ExportOptions{
			Format: history.FormatText,
			Filter: history.RecordFilter{Sessions: []string{"web"}},
		})
		require.NoError(t, err)
		assert.Equal(t, string(want), buf.String())
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "history.json")
		var buf bytes.Buffer
		require.NoError(t, historyExport(store, []string{"-f", "json", "--metadata", "--file", path}, &buf, clock.Now()))
		assert.Contains(t, buf.String(), "exported ")
		assert.Contains(t, buf.String(), path)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.True(t, json.Valid(data))
		assert.Contains(t, string(data), "PORT_IN_USE")
	})

	t.Run("unknown format", func(t *testing.T) {
		err := historyExport(store, []string{"-f", "csv"}, &bytes.Buffer{}, clock.Now())
		assert.ErrorIs(t, err, history.ErrUnknownFormat)
	})
}

func TestHistoryClear(t *testing.T) {
	store, _ := seededHistory(t)

	var buf bytes.Buffer
	require.NoError(t, historyClear(store, []string{"web"}, &buf))
	assert.Equal(t, "removed 1 records of web\n", buf.String())
	assert.Equal(t, 3, store.Len())

	buf.Reset()
	require.NoError(t, historyClear(store, nil, &buf))
	assert.Equal(t, "removed 3 records\n", buf.String())
	assert.Zero(t, store.Len())

	assert.Error(t, historyClear(store, []string{"a", "b"}, &buf))
}
