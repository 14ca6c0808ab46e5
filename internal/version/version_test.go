package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withBuild(t *testing.T, version, commit, date string) {
	t.Helper()
	oldVersion, oldCommit, oldDate := Version, GitCommit, BuildDate
	Version, GitCommit, BuildDate = version, commit, date
	t.Cleanup(func() { Version, GitCommit, BuildDate = oldVersion, oldCommit, oldDate })
}

func TestGetBaseVersion(t *testing.T) {
	tests := []struct {
		name     string
		version  string
		expected string
	}{
		{name: "plain", version: "0.3.0", expected: "0.3.0"},
		{name: "prerelease", version: "0.3.1-beta.2", expected: "0.3.1"},
		{name: "build metadata", version: "1.2.3+45.abcdef0", expected: "1.2.3"},
		{name: "invalid falls back to raw", version: "dev", expected: "dev"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withBuild(t, tt.version, "unknown", "unknown")
			assert.Equal(t, tt.expected, GetBaseVersion())
		})
	}
}

func TestInfo_Commits(t *testing.T) {
	tests := []struct {
		version string
		want    int
	}{
		{version: "0.3.0+123.abc1234", want: 123},
		{version: "0.3.0+abc1234", want: 0},
		{version: "0.3.0", want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			withBuild(t, tt.version, "unknown", "unknown")
			info, err := Current()
			require.NoError(t, err)
			assert.Equal(t, tt.want, info.Commits())
		})
	}
}

func TestCurrent_InvalidVersion(t *testing.T) {
	withBuild(t, "not-semver", "unknown", "unknown")

	_, err := Current()
	assert.Error(t, err)
	assert.Equal(t, "shellpilot vnot-semver (invalid version)", GetFormattedVersion())
	assert.Contains(t, GetDetailedVersion(), "error:")
}

func TestGetFormattedVersion(t *testing.T) {
	withBuild(t, "0.3.0", "unknown", "unknown")
	assert.Equal(t, "shellpilot v0.3.0", GetFormattedVersion())

	withBuild(t, "0.3.0", "0123456789abcdef", "2026-10-01")
	assert.Equal(t, "shellpilot v0.3.0, commit 0123456, built 2026-10-01", GetFormattedVersion())
}

func TestGetDetailedVersion(t *testing.T) {
	withBuild(t, "0.4.0+12.deadbee", "deadbeef", "2026-10-01")

	out := GetDetailedVersion()
	assert.Contains(t, out, "shellpilot v0.4.0+12.deadbee\n")
	assert.Contains(t, out, "Git Commit: deadbeef\n")
	assert.Contains(t, out, "Commits: 12\n")
	assert.Contains(t, out, "Platform: ")
}
