package terminal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shellpilot/internal/shellintegration"
	"shellpilot/pkg/shelltypes"
)

func TestShellCommand(t *testing.T) {
	t.Run("bash gets an rcfile", func(t *testing.T) {
		cmd, files, err := shellCommand(shellintegration.ShellBash, "/bin/bash")
		require.NoError(t, err)
		defer files.remove()

		require.Len(t, cmd.Args, 4)
		assert.Equal(t, "--rcfile", cmd.Args[1])
		assert.Equal(t, "-i", cmd.Args[3])

		body, err := os.ReadFile(cmd.Args[2])
		require.NoError(t, err)
		script, _ := shellintegration.Script(shellintegration.ShellBash)
		assert.Equal(t, script, string(body))

		files.remove()
		_, err = os.Stat(cmd.Args[2])
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("zsh gets a ZDOTDIR", func(t *testing.T) {
		cmd, files, err := shellCommand(shellintegration.ShellZsh, "/bin/zsh")
		require.NoError(t, err)
		defer files.remove()

		assert.Equal(t, []string{"/bin/zsh", "-i"}, cmd.Args)
		dir, ok := files.zdotdir()
		require.True(t, ok)
		_, err = os.Stat(filepath.Join(dir, ".zshrc"))
		assert.NoError(t, err)
	})

	t.Run("other shells run plain", func(t *testing.T) {
		cmd, files, err := shellCommand("fish", "/usr/bin/fish")
		require.NoError(t, err)
		assert.Equal(t, []string{"/usr/bin/fish", "-i"}, cmd.Args)
		_, ok := files.zdotdir()
		assert.False(t, ok)
	})
}

func TestSpawner_Errors(t *testing.T) {
	s := NewSpawner(NewLocator(WithLookPath(fakeLookPath(nil))))

	_, err := s.Spawn(context.Background(), shelltypes.SpawnOptions{Name: "x", ShellKind: "bash"})
	assert.True(t, errors.Is(err, ErrShellNotFound))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Spawn(ctx, shelltypes.SpawnOptions{Name: "x", ShellKind: "bash"})
	assert.ErrorIs(t, err, context.Canceled)
}
