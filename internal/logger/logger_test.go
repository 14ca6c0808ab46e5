package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]log.Level{
		"debug":   log.DebugLevel,
		"INFO":    log.InfoLevel,
		"warn":    log.WarnLevel,
		"error":   log.ErrorLevel,
		"fatal":   log.FatalLevel,
		"verbose": log.InfoLevel,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, parseLogLevel(in))
		})
	}
}

func TestConfigure_LogFile(t *testing.T) {
	t.Cleanup(func() { require.NoError(t, Configure("info", "", false)) })

	path := filepath.Join(t.TempDir(), "shellpilot.log")
	require.NoError(t, Configure("debug", path, false))
	assert.Equal(t, log.DebugLevel, Logger.GetLevel())

	SessionOperation("spawn", "api", "shell", "/bin/bash")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Session operation")
	assert.Contains(t, string(data), "session=api")
}

func TestConfigure_TestModeForcesInfo(t *testing.T) {
	t.Cleanup(func() { require.NoError(t, Configure("info", "", false)) })

	require.NoError(t, Configure("debug", "", true))
	assert.Equal(t, log.InfoLevel, Logger.GetLevel())
}

func TestConfigure_BadFile(t *testing.T) {
	err := Configure("info", filepath.Join(t.TempDir(), "missing", "dir", "x.log"), false)
	assert.Error(t, err)
}

func TestNewStyledLogger_FollowsOutput(t *testing.T) {
	t.Cleanup(func() { require.NoError(t, Configure("info", "", false)) })

	var buf bytes.Buffer
	SetOutput(&buf)

	l := NewStyledLogger("Orchestrator")
	l.Info("Command completed", "session", "api", "exit_code", 0)

	assert.Contains(t, buf.String(), "Orchestrator")
	assert.Contains(t, buf.String(), "Command completed")
	assert.Contains(t, buf.String(), "exit_code=0")
}
