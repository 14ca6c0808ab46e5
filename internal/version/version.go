// Package version holds the build information of shellpilot. The variables
// are overridden at build time with -ldflags "-X shellpilot/internal/version.Version=...".
package version

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Build information injected at link time.
var (
	Version   = "0.3.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info is the parsed build information.
type Info struct {
	Version   string          `json:"version"`
	GitCommit string          `json:"gitCommit"`
	BuildDate string          `json:"buildDate"`
	GoVersion string          `json:"goVersion"`
	Platform  string          `json:"platform"`
	SemVer    *semver.Version `json:"-"`
}

// Current parses Version. It fails when Version is not a semantic version.
func Current() (Info, error) {
	sv, err := semver.NewVersion(Version)
	if err != nil {
		return Info{}, fmt.Errorf("invalid semantic version %q: %w", Version, err)
	}
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		SemVer:    sv,
	}, nil
}

// Base returns major.minor.patch without prerelease or build metadata.
func (i Info) Base() string {
	return fmt.Sprintf("%d.%d.%d", i.SemVer.Major(), i.SemVer.Minor(), i.SemVer.Patch())
}

// Commits returns the commit count carried in build metadata such as
// "0.3.0+123.abc1234", or 0.
func (i Info) Commits() int {
	head, _, _ := strings.Cut(i.SemVer.Metadata(), ".")
	n, err := strconv.Atoi(head)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// GetVersion returns the raw version string.
func GetVersion() string {
	return Version
}

// GetBaseVersion returns the base version, or the raw string when it does not parse.
func GetBaseVersion() string {
	info, err := Current()
	if err != nil {
		return Version
	}
	return info.Base()
}

// GetFormattedVersion returns a one-line version string.
func GetFormattedVersion() string {
	info, err := Current()
	if err != nil {
		return fmt.Sprintf("shellpilot v%s (invalid version)", Version)
	}

	line := "shellpilot v" + info.Version
	if known(info.GitCommit) {
		commit := info.GitCommit
		if len(commit) > 7 {
			commit = commit[:7]
		}
		line += ", commit " + commit
	}
	if known(info.BuildDate) {
		line += ", built " + info.BuildDate
	}
	return line
}

// GetDetailedVersion returns multi-line build information for bug reports.
func GetDetailedVersion() string {
	info, err := Current()
	if err != nil {
		return fmt.Sprintf("shellpilot v%s (error: %v)", Version, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "shellpilot v%s\n", info.Version)
	fmt.Fprintf(&b, "Git Commit: %s\n", info.GitCommit)
	fmt.Fprintf(&b, "Build Date: %s\n", info.BuildDate)
	if n := info.Commits(); n > 0 {
		fmt.Fprintf(&b, "Commits: %d\n", n)
	}
	fmt.Fprintf(&b, "Go Version: %s\n", info.GoVersion)
	fmt.Fprintf(&b, "Platform: %s", info.Platform)
	return b.String()
}

func known(s string) bool {
	return s != "" && s != "unknown"
}
