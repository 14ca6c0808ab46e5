package terminal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/creack/pty"

	"shellpilot/internal/logger"
	"shellpilot/internal/shellintegration"
	"shellpilot/pkg/shelltypes"
)

// Sentinel errors of the PTY backend.
var (
	ErrShellNotFound  = errors.New("shell not found")
	ErrTerminalClosed = errors.New("terminal closed")
	ErrNotIntegrated  = errors.New("shell has not announced command integration")
	ErrCommandRunning = errors.New("a command is already running in this terminal")
)

// Default PTY geometry. Wide columns keep the shell from wrapping output.
const (
	defaultRows = 50
	defaultCols = 400
)

// Spawner starts interactive shells on a pseudo-terminal with the OSC 133
// integration script installed when one exists for the shell.
type Spawner struct {
	locator shelltypes.ShellLocator
}

// NewSpawner creates a spawner. locator resolves SpawnOptions without a
// ShellPath; nil uses a default Locator.
func NewSpawner(locator shelltypes.ShellLocator) *Spawner {
	if locator == nil {
		locator = NewLocator()
	}
	return &Spawner{locator: locator}
}

// Spawn implements shelltypes.Spawner. ctx only bounds the start-up; the
// shell outlives it.
func (s *Spawner) Spawn(ctx context.Context, opts shelltypes.SpawnOptions) (shelltypes.Terminal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := opts.ShellPath
	if path == "" {
		resolved, ok := s.locator.Resolve(opts.ShellKind)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrShellNotFound, opts.ShellKind)
		}
		path = resolved
	}
	kind := opts.ShellKind
	if kind == "" {
		kind = KindOf(path)
	}

	cmd, cleanup, err := shellCommand(kind, path)
	if err != nil {
		return nil, err
	}
	cmd.Dir = opts.Cwd
	cmd.Env = os.Environ()
	for key, value := range opts.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}
	if dir, ok := cleanup.zdotdir(); ok {
		cmd.Env = append(cmd.Env, "ZDOTDIR="+dir)
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: defaultRows, Cols: defaultCols})
	if err != nil {
		cleanup.remove()
		return nil, fmt.Errorf("failed to start PTY for %s: %w", path, err)
	}

	logger.NewStyledLogger("Terminal").Debug("Spawned shell", "session", opts.Name, "shell", path, "pid", cmd.Process.Pid)
	return newTerminal(opts.Name, cmd, ptmx, cleanup.remove), nil
}

// scriptFiles tracks the temporary integration files of one shell.
type scriptFiles struct {
	file string
	dir  string
}

func (f scriptFiles) zdotdir() (string, bool) {
	return f.dir, f.dir != ""
}

func (f scriptFiles) remove() {
	if f.file != "" {
		_ = os.Remove(f.file)
	}
	if f.dir != "" {
		_ = os.RemoveAll(f.dir)
	}
}

// shellCommand builds the interactive shell command for kind, writing its
// integration script to a temporary location.
func shellCommand(kind, path string) (*exec.Cmd, scriptFiles, error) {
	script, ok := shellintegration.Script(kind)
	if !ok {
		return exec.Command(path, "-i"), scriptFiles{}, nil
	}

	switch kind {
	case shellintegration.ShellBash:
		f, err := os.CreateTemp("", "shellpilot-*.bashrc")
		if err != nil {
			return nil, scriptFiles{}, fmt.Errorf("failed to create rcfile: %w", err)
		}
		files := scriptFiles{file: f.Name()}
		if _, err := f.WriteString(script); err != nil {
			_ = f.Close()
			files.remove()
			return nil, scriptFiles{}, fmt.Errorf("failed to write rcfile: %w", err)
		}
		if err := f.Close(); err != nil {
			files.remove()
			return nil, scriptFiles{}, fmt.Errorf("failed to write rcfile: %w", err)
		}
		return exec.Command(path, "--rcfile", f.Name(), "-i"), files, nil

	case shellintegration.ShellZsh:
		dir, err := os.MkdirTemp("", "shellpilot-zsh-")
		if err != nil {
			return nil, scriptFiles{}, fmt.Errorf("failed to create ZDOTDIR: %w", err)
		}
		files := scriptFiles{dir: dir}
		if err := os.WriteFile(filepath.Join(dir, ".zshrc"), []byte(script), 0o600); err != nil {
			files.remove()
			return nil, scriptFiles{}, fmt.Errorf("failed to write .zshrc: %w", err)
		}
		return exec.Command(path, "-i"), files, nil
	}

	return exec.Command(path, "-i"), scriptFiles{}, nil
}
