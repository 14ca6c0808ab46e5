package sessions

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"shellpilot/internal/testutils"
	"shellpilot/pkg/shelltypes"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPool_AddAndNames(t *testing.T) {
	pool := NewPool(NewRegistry())
	defer pool.CloseAll()

	require.NoError(t, pool.Add(testutils.NewFakeTerminal("b")))
	require.NoError(t, pool.Add(testutils.NewFakeTerminal("a")))

	assert.Equal(t, []string{"a", "b"}, pool.Names())

	err := pool.Add(testutils.NewFakeTerminal("a"))
	assert.ErrorIs(t, err, ErrSessionExists)

	term, ok := pool.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", term.Name())
}

func TestPool_TerminalCloseDropsBothEntries(t *testing.T) {
	registry := NewRegistry()
	pool := NewPool(registry)

	var mu sync.Mutex
	var closed []string
	pool.OnClosed(func(name string) {
		mu.Lock()
		defer mu.Unlock()
		closed = append(closed, name)
	})

	term := testutils.NewFakeTerminal("dev")
	require.NoError(t, pool.Add(term))
	registry.Register("dev", shelltypes.SessionRunning, "npm run dev", nil)

	require.NoError(t, term.Close())

	assert.Eventually(t, func() bool {
		_, inPool := pool.Get("dev")
		_, inRegistry := registry.Get("dev")
		return !inPool && !inRegistry
	}, time.Second, 5*time.Millisecond)

	pool.Wait()
	mu.Lock()
	assert.Equal(t, []string{"dev"}, closed)
	mu.Unlock()
}

func TestPool_CloseRemovesAndNotifies(t *testing.T) {
	registry := NewRegistry()
	pool := NewPool(registry)

	notified := make(chan string, 1)
	pool.OnClosed(func(name string) { notified <- name })

	term := testutils.NewFakeTerminal("job")
	require.NoError(t, pool.Add(term))
	registry.Register("job", shelltypes.SessionIdle, "", nil)

	require.NoError(t, pool.Close("job"))

	assert.Equal(t, "job", <-notified)
	assert.Zero(t, pool.Len())
	assert.Zero(t, registry.Len())
	select {
	case <-term.Closed():
	default:
		t.Fatal("terminal should be closed")
	}

	assert.Error(t, pool.Close("job"))
	pool.Wait()
}

func TestPool_RemoveAndClearKeepTerminalsOpen(t *testing.T) {
	pool := NewPool(NewRegistry())

	a := testutils.NewFakeTerminal("a")
	b := testutils.NewFakeTerminal("b")
	require.NoError(t, pool.Add(a))
	require.NoError(t, pool.Add(b))

	removed, ok := pool.Remove("a")
	require.True(t, ok)
	assert.Same(t, a, removed)

	pool.Clear()
	assert.Zero(t, pool.Len())
	pool.Wait()

	for _, term := range []*testutils.FakeTerminal{a, b} {
		select {
		case <-term.Closed():
			t.Fatalf("%s should still be open", term.Name())
		default:
		}
	}
}

func TestPool_TouchOnlyWhileLive(t *testing.T) {
	registry := NewRegistry()
	pool := NewPool(registry)

	term := testutils.NewFakeTerminal("api")
	require.NoError(t, pool.Add(term))

	require.True(t, pool.Touch("api", shelltypes.SessionRunning, "npm start", nil))
	session, ok := registry.Get("api")
	require.True(t, ok)
	assert.Equal(t, shelltypes.SessionRunning, session.Status)

	require.NoError(t, term.Close())
	pool.Wait()

	assert.False(t, pool.Touch("api", shelltypes.SessionCompleted, "npm start", shelltypes.IntPtr(0)))
	_, ok = registry.Get("api")
	assert.False(t, ok, "a closed session must not come back")
	assert.False(t, pool.Touch("missing", shelltypes.SessionIdle, "", nil))
}

func TestPool_TouchRacingClose(t *testing.T) {
	for i := 0; i < 50; i++ {
		registry := NewRegistry()
		pool := NewPool(registry)
		term := testutils.NewFakeTerminal("race")
		require.NoError(t, pool.Add(term))

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				pool.Touch("race", shelltypes.SessionCompleted, "make", shelltypes.IntPtr(0))
			}
		}()
		require.NoError(t, term.Close())
		wg.Wait()
		pool.Wait()

		assert.Zero(t, registry.Len())
	}
}
