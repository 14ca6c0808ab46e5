package terminal

import (
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultShells are the shell identifiers probed by Available.
var DefaultShells = []string{"bash", "zsh", "sh", "dash", "ksh", "fish", "pwsh"}

// Locator resolves shell identifiers through PATH.
type Locator struct {
	shells   []string
	lookPath func(string) (string, error)
}

// LocatorOption configures a Locator.
type LocatorOption func(*Locator)

// WithShells replaces the identifiers probed by Available.
func WithShells(shells ...string) LocatorOption {
	return func(l *Locator) {
		l.shells = append([]string(nil), shells...)
	}
}

// WithLookPath replaces exec.LookPath.
func WithLookPath(fn func(string) (string, error)) LocatorOption {
	return func(l *Locator) {
		l.lookPath = fn
	}
}

// NewLocator creates a locator over DefaultShells.
func NewLocator(opts ...LocatorOption) *Locator {
	l := &Locator{shells: DefaultShells, lookPath: exec.LookPath}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Resolve returns the executable for kind. Paths are accepted as-is when
// they point at an executable file.
func (l *Locator) Resolve(kind string) (string, bool) {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return "", false
	}
	if strings.ContainsRune(kind, filepath.Separator) {
		info, err := os.Stat(kind)
		if err != nil || info.IsDir() || info.Mode()&0o111 == 0 {
			return "", false
		}
		return kind, true
	}
	path, err := l.lookPath(kind)
	if err != nil {
		return "", false
	}
	return path, true
}

// Available lists the known shells that resolve on this machine, sorted.
func (l *Locator) Available() []string {
	var out []string
	for _, kind := range l.shells {
		if _, ok := l.Resolve(kind); ok {
			out = append(out, kind)
		}
	}
	sort.Strings(out)
	return out
}

// KindOf derives a shell identifier from an executable path.
func KindOf(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".exe")
}
