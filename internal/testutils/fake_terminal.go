package testutils

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"shellpilot/pkg/shelltypes"
)

// ErrFakeClosed is returned by a FakeTerminal after Close.
var ErrFakeClosed = errors.New("fake terminal closed")

// Script drives a FakeExecution after it is issued. It runs on its own goroutine.
type Script func(exec *FakeExecution)

// Complete returns a script that emits chunks and then exits with code.
func Complete(code int, chunks ...string) Script {
	return func(exec *FakeExecution) {
		for _, c := range chunks {
			exec.Emit(c)
		}
		exec.Complete(code)
	}
}

// Hang returns a script that emits chunks and never completes on its own.
func Hang(chunks ...string) Script {
	return func(exec *FakeExecution) {
		for _, c := range chunks {
			exec.Emit(c)
		}
	}
}

// FakeSpawner creates FakeTerminals.
type FakeSpawner struct {
	mu        sync.Mutex
	terminals []*FakeTerminal
	opts      []shelltypes.SpawnOptions

	// Integrated terminals announce the completion protocol right away.
	Integrated bool
	// Script is installed on every spawned terminal.
	Script Script
	// Err fails every Spawn call.
	Err error
}

// Spawn implements shelltypes.Spawner.
func (s *FakeSpawner) Spawn(ctx context.Context, opts shelltypes.SpawnOptions) (shelltypes.Terminal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.opts = append(s.opts, opts)
	if s.Err != nil {
		return nil, s.Err
	}

	term := NewFakeTerminal(opts.Name)
	term.Script = s.Script
	if s.Integrated {
		term.AnnounceIntegration()
	}
	s.terminals = append(s.terminals, term)
	return term, nil
}

// Terminals returns every terminal spawned so far.
func (s *FakeSpawner) Terminals() []*FakeTerminal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*FakeTerminal(nil), s.terminals...)
}

// SpawnOptions returns the options of every Spawn call.
func (s *FakeSpawner) SpawnOptions() []shelltypes.SpawnOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]shelltypes.SpawnOptions(nil), s.opts...)
}

// FakeTerminal is an in-memory shelltypes.Terminal.
type FakeTerminal struct {
	name        string
	integration chan struct{}
	closed      chan struct{}
	announce    sync.Once
	closeOnce   sync.Once

	mu          sync.Mutex
	executions  []*FakeExecution
	sent        []string
	subscribers map[*FakeExecution]map[int]chan int
	nextSub     int
	disposed    int

	// Script runs for every Execute call.
	Script Script
	// ExecuteErr fails every Execute call.
	ExecuteErr error
}

// NewFakeTerminal creates a terminal without shell integration.
func NewFakeTerminal(name string) *FakeTerminal {
	return &FakeTerminal{
		name:        name,
		integration: make(chan struct{}),
		closed:      make(chan struct{}),
		subscribers: make(map[*FakeExecution]map[int]chan int),
	}
}

// Name implements shelltypes.Terminal.
func (t *FakeTerminal) Name() string { return t.name }

// ShellIntegration implements shelltypes.Terminal.
func (t *FakeTerminal) ShellIntegration() <-chan struct{} { return t.integration }

// AnnounceIntegration marks the shell as speaking the completion protocol.
func (t *FakeTerminal) AnnounceIntegration() {
	t.announce.Do(func() { close(t.integration) })
}

// Execute implements shelltypes.Terminal.
func (t *FakeTerminal) Execute(command string) (shelltypes.Execution, error) {
	select {
	case <-t.closed:
		return nil, ErrFakeClosed
	default:
	}
	if t.ExecuteErr != nil {
		return nil, t.ExecuteErr
	}

	t.mu.Lock()
	exec := &FakeExecution{
		id:       fmt.Sprintf("%s-%d", t.name, len(t.executions)+1),
		command:  command,
		terminal: t,
		stream:   make(chan string, 64),
	}
	t.executions = append(t.executions, exec)
	script := t.Script
	t.mu.Unlock()

	if script != nil {
		go script(exec)
	}
	return exec, nil
}

// SendText implements shelltypes.Terminal.
func (t *FakeTerminal) SendText(text string) error {
	select {
	case <-t.closed:
		return ErrFakeClosed
	default:
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, text)
	return nil
}

// SubscribeCompletion implements shelltypes.Terminal. A subscription made
// after the execution completed fires immediately.
func (t *FakeTerminal) SubscribeCompletion(exec shelltypes.Execution) (<-chan int, func()) {
	fe, _ := exec.(*FakeExecution)
	ch := make(chan int, 1)

	t.mu.Lock()
	if fe == nil {
		t.mu.Unlock()
		return ch, func() {}
	}
	if fe.done {
		ch <- fe.code
		t.mu.Unlock()
		return ch, func() {}
	}
	id := t.nextSub
	t.nextSub++
	if t.subscribers[fe] == nil {
		t.subscribers[fe] = make(map[int]chan int)
	}
	t.subscribers[fe][id] = ch
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if subs, ok := t.subscribers[fe]; ok {
				if _, live := subs[id]; live {
					delete(subs, id)
					t.disposed++
				}
			}
		})
	}
}

// Closed implements shelltypes.Terminal.
func (t *FakeTerminal) Closed() <-chan struct{} { return t.closed }

// Close implements shelltypes.Terminal.
func (t *FakeTerminal) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

// Executions returns every execution issued through the completion protocol.
func (t *FakeTerminal) Executions() []*FakeExecution {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*FakeExecution(nil), t.executions...)
}

// LastExecution returns the most recent execution or nil.
func (t *FakeTerminal) LastExecution() *FakeExecution {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.executions) == 0 {
		return nil
	}
	return t.executions[len(t.executions)-1]
}

// SentText returns everything injected with SendText.
func (t *FakeTerminal) SentText() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.sent...)
}

// ActiveSubscriptions counts completion listeners neither fired nor disposed.
func (t *FakeTerminal) ActiveSubscriptions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, subs := range t.subscribers {
		n += len(subs)
	}
	return n
}

// DisposedSubscriptions counts listeners removed by their dispose function.
func (t *FakeTerminal) DisposedSubscriptions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disposed
}

// FakeExecution is an in-memory shelltypes.Execution.
type FakeExecution struct {
	id       string
	command  string
	terminal *FakeTerminal
	stream   chan string

	// guarded by terminal.mu
	done     bool
	code     int
	detached bool
}

// ID implements shelltypes.Execution.
func (e *FakeExecution) ID() string { return e.id }

// Command implements shelltypes.Execution.
func (e *FakeExecution) Command() string { return e.command }

// Stream implements shelltypes.Execution.
func (e *FakeExecution) Stream() <-chan string { return e.stream }

// Detach implements shelltypes.Execution.
func (e *FakeExecution) Detach() {
	e.terminal.mu.Lock()
	defer e.terminal.mu.Unlock()
	e.detached = true
}

// Detached reports whether the consumer detached from the stream.
func (e *FakeExecution) Detached() bool {
	e.terminal.mu.Lock()
	defer e.terminal.mu.Unlock()
	return e.detached
}

// Emit delivers a chunk unless the execution finished or was detached. It
// drops the chunk instead of blocking when the stream buffer is full.
func (e *FakeExecution) Emit(chunk string) {
	e.terminal.mu.Lock()
	defer e.terminal.mu.Unlock()
	if e.done || e.detached {
		return
	}
	select {
	case e.stream <- chunk:
	default:
	}
}

// Complete closes the stream and fires every completion listener with code.
// Only the first call has an effect.
func (e *FakeExecution) Complete(code int) {
	e.terminal.mu.Lock()
	defer e.terminal.mu.Unlock()
	if e.done {
		return
	}
	e.done = true
	e.code = code
	close(e.stream)

	subs := e.terminal.subscribers[e]
	ids := make([]int, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		subs[id] <- code
	}
	delete(e.terminal.subscribers, e)
}

// Done reports whether Complete was called.
func (e *FakeExecution) Done() bool {
	e.terminal.mu.Lock()
	defer e.terminal.mu.Unlock()
	return e.done
}
