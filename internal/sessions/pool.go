package sessions

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"shellpilot/internal/logger"
	"shellpilot/pkg/shelltypes"
)

// ErrSessionExists is returned when adding a terminal under a name that is
// already live.
var ErrSessionExists = errors.New("session already exists")

type poolEntry struct {
	terminal shelltypes.Terminal
	stop     chan struct{}
}

// Pool holds the live terminal behind each session name. When a terminal
// reports that it closed, the pool drops it and its registry entry.
type Pool struct {
	mu       sync.Mutex
	entries  map[string]*poolEntry
	registry *Registry
	onClosed []func(name string)
	watchers sync.WaitGroup
}

// NewPool creates a pool that keeps registry in step with terminal lifetimes.
func NewPool(registry *Registry) *Pool {
	return &Pool{
		entries:  make(map[string]*poolEntry),
		registry: registry,
	}
}

// OnClosed registers a callback run after a terminal closes, on its own or
// through Close, and its entries are gone.
func (p *Pool) OnClosed(fn func(name string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClosed = append(p.onClosed, fn)
}

// Add makes term live under its name.
func (p *Pool) Add(term shelltypes.Terminal) error {
	name := term.Name()

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.entries[name]; exists {
		return fmt.Errorf("%w: %s", ErrSessionExists, name)
	}

	entry := &poolEntry{terminal: term, stop: make(chan struct{})}
	p.entries[name] = entry

	p.watchers.Add(1)
	go p.watch(name, entry)

	logger.SessionOperation("pool_add", name)
	return nil
}

func (p *Pool) watch(name string, entry *poolEntry) {
	defer p.watchers.Done()

	select {
	case <-entry.terminal.Closed():
	case <-entry.stop:
		return
	}

	p.mu.Lock()
	current, ok := p.entries[name]
	if !ok || current != entry {
		p.mu.Unlock()
		return
	}
	delete(p.entries, name)
	callbacks := append([]func(string){}, p.onClosed...)
	p.mu.Unlock()

	if p.registry != nil {
		p.registry.Remove(name)
	}
	logger.SessionOperation("terminal_closed", name)

	for _, fn := range callbacks {
		fn(name)
	}
}

// Touch records session metadata in the registry while the terminal for name
// is live. It reports false, and leaves the registry alone, once the terminal
// has closed or been removed.
func (p *Pool) Touch(name string, status shelltypes.SessionStatus, command string, exitCode *int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.entries[name]; !ok || p.registry == nil {
		return false
	}
	p.registry.Register(name, status, command, exitCode)
	return true
}

// Get returns the live terminal for name.
func (p *Pool) Get(name string) (shelltypes.Terminal, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[name]
	if !ok {
		return nil, false
	}
	return entry.terminal, true
}

// Names returns the live session names, sorted.
func (p *Pool) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, 0, len(p.entries))
	for name := range p.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Remove forgets the terminal for name without closing it.
func (p *Pool) Remove(name string) (shelltypes.Terminal, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[name]
	if !ok {
		return nil, false
	}
	delete(p.entries, name)
	close(entry.stop)
	return entry.terminal, true
}

// Close closes the terminal for name and removes it and its registry entry.
func (p *Pool) Close(name string) error {
	term, ok := p.Remove(name)
	if !ok {
		return fmt.Errorf("session %s not found", name)
	}
	if p.registry != nil {
		p.registry.Remove(name)
	}
	err := term.Close()

	p.mu.Lock()
	callbacks := append([]func(string){}, p.onClosed...)
	p.mu.Unlock()
	for _, fn := range callbacks {
		fn(name)
	}

	if err != nil {
		return fmt.Errorf("failed to close session %s: %w", name, err)
	}
	return nil
}

// CloseAll closes every live terminal.
func (p *Pool) CloseAll() error {
	var errs []error
	for _, name := range p.Names() {
		if err := p.Close(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Clear forgets every terminal without closing any of them.
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, entry := range p.entries {
		close(entry.stop)
		delete(p.entries, name)
	}
}

// Len returns the number of live terminals.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Wait blocks until every close watcher has exited.
func (p *Pool) Wait() {
	p.watchers.Wait()
}
