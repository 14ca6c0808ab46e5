package terminal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"shellpilot/internal/logger"
	"shellpilot/internal/shellintegration"
	"shellpilot/pkg/shelltypes"
)

const (
	readBufferSize   = 4096
	streamBufferSize = 256
)

// Terminal is a live shell on a pseudo-terminal. A single reader goroutine
// parses the OSC 133 markers the shell prints and routes output to the
// execution that is currently running.
type Terminal struct {
	name    string
	cmd     *exec.Cmd
	ptmx    *os.File
	cleanup func()
	log     *log.Logger

	parser  *shellintegration.StreamParser
	tracker *shellintegration.Tracker

	integration chan struct{}
	announce    sync.Once
	closed      chan struct{}
	shutdown    sync.Once
	closeOnce   sync.Once
	readerDone  chan struct{}
	exited      chan struct{}
	writeMu     sync.Mutex

	mu          sync.Mutex
	current     *Execution
	subscribers map[*Execution]map[int]chan int
	// set by a D marker until the prompt that follows it
	afterEnd    bool
	nextSub     int
}

func newTerminal(name string, cmd *exec.Cmd, ptmx *os.File, cleanup func()) *Terminal {
	t := &Terminal{
		name:        name,
		cmd:         cmd,
		ptmx:        ptmx,
		cleanup:     cleanup,
		log:         logger.NewStyledLogger("Terminal"),
		parser:      shellintegration.NewStreamParser(),
		tracker:     shellintegration.NewTracker(),
		integration: make(chan struct{}),
		closed:      make(chan struct{}),
		readerDone:  make(chan struct{}),
		exited:      make(chan struct{}),
		subscribers: make(map[*Execution]map[int]chan int),
	}
	go t.read()
	go func() {
		_ = cmd.Wait()
		close(t.exited)
	}()
	return t
}

// Name implements shelltypes.Terminal.
func (t *Terminal) Name() string { return t.name }

// ShellIntegration implements shelltypes.Terminal.
func (t *Terminal) ShellIntegration() <-chan struct{} { return t.integration }

// Closed implements shelltypes.Terminal.
func (t *Terminal) Closed() <-chan struct{} { return t.closed }

// Execute implements shelltypes.Terminal. Only one command runs at a time.
func (t *Terminal) Execute(command string) (shelltypes.Execution, error) {
	select {
	case <-t.closed:
		return nil, ErrTerminalClosed
	default:
	}
	select {
	case <-t.integration:
	default:
		return nil, ErrNotIntegrated
	}

	t.mu.Lock()
	if t.current != nil && !t.current.done {
		t.mu.Unlock()
		return nil, ErrCommandRunning
	}
	run := newExecution(uuid.NewString(), command)
	t.current = run
	t.mu.Unlock()

	if err := t.write(command + "\n"); err != nil {
		t.mu.Lock()
		run.aborted = true
		t.finish(run, -1)
		t.mu.Unlock()
		return nil, err
	}
	t.log.Debug("Issued command", "session", t.name, "id", run.id, "command", command)
	return run, nil
}

// SendText implements shelltypes.Terminal.
func (t *Terminal) SendText(text string) error {
	select {
	case <-t.closed:
		return ErrTerminalClosed
	default:
	}
	return t.write(text + "\n")
}

func (t *Terminal) write(text string) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := io.WriteString(t.ptmx, text); err != nil {
		return fmt.Errorf("failed to write to terminal %s: %w", t.name, err)
	}
	return nil
}

// SubscribeCompletion implements shelltypes.Terminal.
func (t *Terminal) SubscribeCompletion(e shelltypes.Execution) (<-chan int, func()) {
	ch := make(chan int, 1)
	run, ok := e.(*Execution)
	if !ok {
		return ch, func() {}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if run.done {
		if !run.aborted {
			ch <- run.code
		}
		return ch, func() {}
	}
	id := t.nextSub
	t.nextSub++
	if t.subscribers[run] == nil {
		t.subscribers[run] = make(map[int]chan int)
	}
	t.subscribers[run][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			delete(t.subscribers[run], id)
		})
	}
}

// Close terminates the shell and waits for the reader to stop.
func (t *Terminal) Close() error {
	var err error
	t.closeOnce.Do(func() {
		if cerr := t.ptmx.Close(); cerr != nil && !errors.Is(cerr, os.ErrClosed) {
			err = fmt.Errorf("failed to close terminal %s: %w", t.name, cerr)
		}
		if t.cmd.Process != nil {
			_ = t.cmd.Process.Kill()
		}
		<-t.readerDone
		<-t.exited
		if t.cleanup != nil {
			t.cleanup()
		}
		t.log.Debug("Closed terminal", "session", t.name)
	})
	return err
}

// read is the only goroutine that writes to or closes execution streams.
func (t *Terminal) read() {
	defer close(t.readerDone)
	defer t.markClosed()

	buf := make([]byte, readBufferSize)
	for {
		n, err := t.ptmx.Read(buf)
		if n > 0 {
			for _, tok := range t.parser.Feed(buf[:n]) {
				t.handle(tok)
			}
		}
		if err != nil {
			if rest := t.parser.Flush(); rest != "" {
				t.deliver(rest)
			}
			return
		}
	}
}

func (t *Terminal) handle(tok shellintegration.Token) {
	if tok.Sequence == nil {
		t.deliver(tok.Text)
		return
	}

	tr := t.tracker.Apply(*tok.Sequence)
	if tr.Announced {
		t.announce.Do(func() { close(t.integration) })
		t.log.Debug("Shell integration announced", "session", t.name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	switch tr.To {
	case shellintegration.StateCommandEnd:
		t.afterEnd = true
	case shellintegration.StatePromptStart:
		if t.afterEnd {
			t.afterEnd = false
			return
		}
		// A prompt with no end marker since the command was written: the
		// shell ran it without reporting start or exit code.
		if run := t.current; run != nil && !run.done {
			t.log.Debug("Prompt returned without an end marker", "session", t.name, "id", run.id)
			t.finish(run, 0)
		}
		return
	}

	run := t.current
	if run == nil || run.done {
		return
	}
	if tr.OutputStart {
		run.outputStarted = true
	}
	if tr.Completed {
		t.finish(run, tr.ExitCode)
	}
}

// deliver hands text to the running execution once its output has started.
// It blocks while the consumer is slow but gives up when the consumer
// detaches or the terminal closes.
func (t *Terminal) deliver(text string) {
	t.mu.Lock()
	run := t.current
	if run == nil || run.done || !run.outputStarted {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	select {
	case run.stream <- text:
	case <-run.detached:
	case <-t.closed:
	}
}

// finish closes the stream of run and then notifies its subscribers.
// Callers hold t.mu.
func (t *Terminal) finish(run *Execution, code int) {
	if run.done {
		return
	}
	run.done = true
	run.code = code
	close(run.stream)

	for _, ch := range t.subscribers[run] {
		ch <- code
	}
	delete(t.subscribers, run)
	if t.current == run {
		t.current = nil
	}
	t.log.Debug("Command finished", "session", t.name, "id", run.id, "exit_code", code)
}

// markClosed runs when the PTY reports EOF. A command still running never
// completes: its stream is closed and its subscribers never fire, so they
// must watch Closed.
func (t *Terminal) markClosed() {
	t.shutdown.Do(func() {
		close(t.closed)
		t.mu.Lock()
		defer t.mu.Unlock()
		if run := t.current; run != nil && !run.done {
			run.done = true
			run.aborted = true
			close(run.stream)
			t.current = nil
		}
		t.subscribers = make(map[*Execution]map[int]chan int)
		t.log.Debug("Terminal reached EOF", "session", t.name)
	})
}

// Execution is one command issued through the completion protocol.
type Execution struct {
	id       string
	command  string
	stream   chan string
	detached chan struct{}
	detach   sync.Once

	// guarded by the owning Terminal's mu
	outputStarted bool
	done          bool
	aborted       bool
	code          int
}

func newExecution(id, command string) *Execution {
	return &Execution{
		id:       id,
		command:  command,
		stream:   make(chan string, streamBufferSize),
		detached: make(chan struct{}),
	}
}

// ID implements shelltypes.Execution.
func (e *Execution) ID() string { return e.id }

// Command implements shelltypes.Execution.
func (e *Execution) Command() string { return e.command }

// Stream implements shelltypes.Execution.
func (e *Execution) Stream() <-chan string { return e.stream }

// Detach implements shelltypes.Execution.
func (e *Execution) Detach() {
	e.detach.Do(func() { close(e.detached) })
}
