package orchestrator

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"shellpilot/internal/logger"
	"shellpilot/pkg/shelltypes"
)

// MonitorState is the lifecycle of a handed-off command.
type MonitorState string

// Monitor states.
const (
	MonitorRunning   MonitorState = "running"
	MonitorCompleted MonitorState = "completed"
	MonitorCancelled MonitorState = "cancelled"
	MonitorClosed    MonitorState = "closed"
)

// MonitorSnapshot is what Poll reports about a handed-off command.
type MonitorSnapshot struct {
	Session      string                `json:"session" yaml:"session"`
	Command      string                `json:"command" yaml:"command"`
	State        MonitorState          `json:"state" yaml:"state"`
	Elapsed      time.Duration         `json:"elapsed" yaml:"elapsed"`
	Output       string                `json:"output" yaml:"output"`
	Truncated    bool                  `json:"truncated,omitempty" yaml:"truncated,omitempty"`
	OmittedLines int                   `json:"omitted_lines,omitempty" yaml:"omitted_lines,omitempty"`
	ExitCode     *int                  `json:"exit_code,omitempty" yaml:"exit_code,omitempty"`
	Diagnosis    *shelltypes.Diagnosis `json:"diagnosis,omitempty" yaml:"diagnosis,omitempty"`
}

// monitor keeps observing a command after its request returned.
type monitor struct {
	req     shelltypes.ExecutionRequest
	session string
	started time.Time
	buf     *outputBuffer

	stopCh   chan struct{}
	stopOnce sync.Once

	mu     sync.Mutex
	state  MonitorState
	final  *shelltypes.ExecutionResult
	closed time.Time
}

func (m *monitor) stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *monitor) running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == MonitorRunning
}

func (m *monitor) end(state MonitorState, final *shelltypes.ExecutionResult, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	m.final = final
	m.closed = at
}

// handOff returns the timeout-monitoring result and keeps observing ex in the
// background. The completion subscription stays live.
func (o *Orchestrator) handOff(req shelltypes.ExecutionRequest, term shelltypes.Terminal, ex shelltypes.Execution,
	stream <-chan string, done <-chan int, dispose func(), buf *outputBuffer, start time.Time) *shelltypes.ExecutionResult {
	name := term.Name()
	m := &monitor{
		req:     req,
		session: name,
		started: start,
		buf:     buf,
		stopCh:  make(chan struct{}),
		state:   MonitorRunning,
	}

	o.mu.Lock()
	o.monitors[name] = m
	o.mu.Unlock()

	o.watchers.Add(1)
	go o.watch(m, term, ex, stream, done, dispose)

	res := o.result(name, start, shelltypes.ResultTimeoutMonitoring)
	res.Mode = shelltypes.ModeRich
	o.shape(buf.String(), o.budget(req), req.PreFilter).apply(res, req.CaptureOutput)
	res.Note = fmt.Sprintf("The command is still running after %s. Poll session %s for its progress and final result.", req.Timeout, name)

	logger.ExecutionStep(name, "timeout-monitoring", "timeout", req.Timeout)
	return res
}

func (o *Orchestrator) watch(m *monitor, term shelltypes.Terminal, ex shelltypes.Execution,
	stream <-chan string, done <-chan int, dispose func()) {
	defer o.watchers.Done()
	defer dispose()

	for {
		select {
		case chunk, ok := <-stream:
			if !ok {
				stream = nil
				continue
			}
			m.buf.append(chunk)

		case code := <-done:
			drain(stream, m.buf)
			res := o.completed(m.req, m.session, m.started, code, m.buf.String())
			m.end(MonitorCompleted, res, o.now())
			return

		case <-term.Closed():
			drainReady(stream, m.buf)
			m.end(MonitorClosed, nil, o.now())
			o.log.Warn("Monitored session closed", "session", m.session, "command", m.req.Command)
			return

		case <-m.stopCh:
			ex.Detach()
			m.end(MonitorCancelled, nil, o.now())
			logger.ExecutionStep(m.session, "monitor-cancelled")
			return
		}
	}
}

// Poll reports the progress of the command handed off in session. A finished
// command keeps its final snapshot until the session hands off another one.
func (o *Orchestrator) Poll(session string) (MonitorSnapshot, bool) {
	o.mu.Lock()
	m, ok := o.monitors[session]
	o.mu.Unlock()
	if !ok {
		return MonitorSnapshot{}, false
	}

	m.mu.Lock()
	state, final, closed := m.state, m.final, m.closed
	m.mu.Unlock()

	snap := MonitorSnapshot{
		Session: m.session,
		Command: m.req.Command,
		State:   state,
	}
	if final != nil {
		snap.Elapsed = final.Elapsed
		snap.Output = final.Output
		snap.Truncated = final.Truncated
		snap.OmittedLines = final.OmittedLines
		snap.ExitCode = final.ExitCode
		snap.Diagnosis = final.Diagnosis
		return snap, true
	}

	if state == MonitorRunning {
		snap.Elapsed = o.now().Sub(m.started)
	} else {
		snap.Elapsed = closed.Sub(m.started)
	}
	out := o.shape(m.buf.String(), o.budget(m.req), m.req.PreFilter)
	if m.req.CaptureOutput {
		snap.Output = out.Text
	}
	snap.Truncated = out.Truncated
	snap.OmittedLines = out.OmittedLines
	return snap, true
}

// Cancel stops observing the command handed off in session. The command
// itself keeps running. It reports whether a running monitor was stopped.
func (o *Orchestrator) Cancel(session string) bool {
	o.mu.Lock()
	m, ok := o.monitors[session]
	o.mu.Unlock()
	if !ok || !m.running() {
		return false
	}
	m.stop()
	return true
}

// Monitored lists the sessions whose handed-off command is still observed.
func (o *Orchestrator) Monitored() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var names []string
	for name, m := range o.monitors {
		if m.running() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (o *Orchestrator) monitoring(session string) bool {
	o.mu.Lock()
	m, ok := o.monitors[session]
	o.mu.Unlock()
	return ok && m.running()
}
