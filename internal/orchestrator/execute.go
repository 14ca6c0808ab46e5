package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"shellpilot/internal/diagnosis"
	"shellpilot/internal/logger"
	"shellpilot/internal/safety"
	"shellpilot/internal/shellintegration"
	"shellpilot/pkg/shelltypes"
)

// Execute runs req and reports its transitions through status, which may be
// nil. The error return is only used for an invalid request, before any
// transition. Every other outcome, including internal failures and panics,
// is a result accompanied by exactly one terminal status.
func (o *Orchestrator) Execute(ctx context.Context, req shelltypes.ExecutionRequest, status shelltypes.StatusChannel) (res *shelltypes.ExecutionResult, err error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	rep := newReporter(status)
	start := o.now()
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("Recovered from panic", "command", req.Command, "panic", r)
			res = o.failure(req, req.SessionName, start, fmt.Errorf("internal error: %v", r), "")
			err = nil
		}
		rep.finish(res)
	}()

	return o.run(ctx, req, rep, start), nil
}

func (o *Orchestrator) run(ctx context.Context, req shelltypes.ExecutionRequest, rep *reporter, start time.Time) *shelltypes.ExecutionResult {
	logger.ExecutionStep(req.SessionName, "pending", "command", req.Command)

	if req.SandboxEnabled {
		if verdict := safety.Classify(req.Command); !verdict.Safe {
			o.log.Warn("Blocked command", "command", req.Command, "reason", verdict.Reason)
			return o.rejected(req, start, verdict.Reason)
		}
	}

	if req.RequireApproval {
		resp, err := rep.ask(ctx, req.Command)
		if err != nil {
			return o.failure(req, req.SessionName, start, fmt.Errorf("approval request failed: %w", err), "")
		}
		if !resp.Approved {
			note := "Command declined"
			if resp.Feedback != "" {
				note += ": " + resp.Feedback
			}
			return o.rejected(req, start, note)
		}
	}

	rep.update(shelltypes.StatusLoading, req.Command)

	term, key, res := o.resolveSession(ctx, req, start)
	if res != nil {
		return res
	}
	name := term.Name()
	logger.ExecutionStep(name, "negotiating", "shell", key.ShellKind)

	rich, err := o.negotiate(ctx, term, key)
	if err != nil {
		return o.failure(req, name, start, err, "")
	}
	if !rich {
		return o.runFallback(req, term, key, start)
	}
	return o.runRich(ctx, req, rep, term, start)
}

// resolveSession returns the live terminal for the request, spawning one
// when needed. A non-nil result ends the request.
func (o *Orchestrator) resolveSession(ctx context.Context, req shelltypes.ExecutionRequest, start time.Time) (shelltypes.Terminal, shellintegration.ProtocolKey, *shelltypes.ExecutionResult) {
	name := strings.TrimSpace(req.SessionName)
	switch {
	case name == "":
		name = "session-" + shortID(o.newID())
	case req.ReuseSession:
		if term, ok := o.pool.Get(name); ok {
			if o.monitoring(name) {
				return nil, shellintegration.ProtocolKey{}, o.failure(req, name, start, fmt.Errorf("%w: %s", ErrSessionBusy, name), "")
			}
			logger.SessionOperation("reuse", name)
			return term, o.shellKey(name), nil
		}
	default:
		if _, live := o.pool.Get(name); live {
			name = name + "-" + shortID(o.newID())
		}
	}

	path, ok := o.locator.Resolve(o.shell)
	if !ok {
		d := diagnosis.ForShellNotFound(o.shell, o.locator.Available())
		res := o.result(name, start, shelltypes.ResultError)
		res.Diagnosis = &d
		res.Note = fmt.Sprintf("shell %q could not be resolved", o.shell)
		o.log.Warn("Shell not found", "shell", o.shell, "available", o.locator.Available())
		return nil, shellintegration.ProtocolKey{}, res
	}
	key := shellintegration.ProtocolKey{ShellKind: o.shell, ShellPath: path}

	term, err := o.spawner.Spawn(ctx, shelltypes.SpawnOptions{
		Name:      name,
		ShellKind: o.shell,
		ShellPath: path,
		Cwd:       req.WorkingDirectory,
		Env:       req.Env,
	})
	if err != nil {
		return nil, key, o.failure(req, name, start, fmt.Errorf("failed to spawn session %s: %w", name, err), "")
	}
	if err := o.pool.Add(term); err != nil {
		_ = term.Close()
		return nil, key, o.failure(req, name, start, err, "")
	}

	o.mu.Lock()
	o.shells[name] = key
	o.mu.Unlock()
	o.pool.Touch(name, shelltypes.SessionIdle, "", nil)
	logger.SessionOperation("spawn", name, "shell", path)
	return term, key, nil
}

func (o *Orchestrator) shellKey(name string) shellintegration.ProtocolKey {
	o.mu.Lock()
	key, ok := o.shells[name]
	o.mu.Unlock()
	if ok {
		return key
	}
	path, _ := o.locator.Resolve(o.shell)
	return shellintegration.ProtocolKey{ShellKind: o.shell, ShellPath: path}
}

// negotiate reports whether term can run in rich mode. The cache speaks for
// the shell; the terminal itself must still announce integration in time.
func (o *Orchestrator) negotiate(ctx context.Context, term shelltypes.Terminal, key shellintegration.ProtocolKey) (bool, error) {
	outcome, err := o.negotiator.Negotiate(ctx, key, term.ShellIntegration())
	if err != nil {
		return false, err
	}
	o.log.Debug("Negotiated protocol", "session", term.Name(), "state", outcome.State, "cached", outcome.FromCache)
	if !outcome.Supported {
		return false, nil
	}

	timer := time.NewTimer(o.handshakeTimeout)
	defer timer.Stop()
	select {
	case <-term.ShellIntegration():
		return true, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (o *Orchestrator) runFallback(req shelltypes.ExecutionRequest, term shelltypes.Terminal, key shellintegration.ProtocolKey, start time.Time) *shelltypes.ExecutionResult {
	name := term.Name()
	logger.ExecutionStep(name, "running", "mode", shelltypes.ModeFallback)

	if err := term.SendText(req.Command); err != nil {
		return o.failure(req, name, start, err, "")
	}
	o.pool.Touch(name, shelltypes.SessionRunning, req.Command, nil)
	o.record(name, req.Command, shelltypes.SourceCommand, shelltypes.SeverityInfo, "$ "+req.Command)

	res := o.result(name, start, shelltypes.ResultSuccess)
	res.Mode = shelltypes.ModeFallback
	res.Note = fmt.Sprintf("Shell integration is unavailable for %s, so the command was sent without completion tracking. "+
		"Its exit code and output were not captured; check session %s before relying on the result.", key.ShellKind, name)
	return res
}

func (o *Orchestrator) runRich(ctx context.Context, req shelltypes.ExecutionRequest, rep *reporter, term shelltypes.Terminal, start time.Time) *shelltypes.ExecutionResult {
	name := term.Name()

	ex, err := term.Execute(req.Command)
	if err != nil {
		return o.failure(req, name, start, err, "")
	}
	done, dispose := term.SubscribeCompletion(ex)
	handedOff := false
	defer func() {
		if !handedOff {
			dispose()
		}
	}()

	o.pool.Touch(name, shelltypes.SessionRunning, req.Command, nil)
	o.record(name, req.Command, shelltypes.SourceCommand, shelltypes.SeverityInfo, "$ "+req.Command)
	logger.ExecutionStep(name, "running", "mode", shelltypes.ModeRich, "id", ex.ID())

	buf := &outputBuffer{}
	stream := ex.Stream()

	timer := time.NewTimer(req.Timeout)
	defer timer.Stop()
	var progress <-chan time.Time
	if o.progressInterval > 0 {
		ticker := time.NewTicker(o.progressInterval)
		defer ticker.Stop()
		progress = ticker.C
	}

	for {
		select {
		case chunk, ok := <-stream:
			if !ok {
				stream = nil
				continue
			}
			buf.append(chunk)

		case code := <-done:
			drain(stream, buf)
			return o.completed(req, name, start, code, buf.String())

		case <-progress:
			rep.update(shelltypes.StatusLoading, progressPayload(buf.String()))

		case <-timer.C:
			stream = drainReady(stream, buf)
			if req.AutoMonitor {
				handedOff = true
				return o.handOff(req, term, ex, stream, done, dispose, buf, start)
			}
			ex.Detach()
			return o.timedOut(req, name, start, buf.String())

		case <-term.Closed():
			drainReady(stream, buf)
			return o.failure(req, name, start, ErrSessionClosed, buf.String())

		case <-ctx.Done():
			ex.Detach()
			drainReady(stream, buf)
			return o.failure(req, name, start, fmt.Errorf("execution cancelled: %w", ctx.Err()), buf.String())
		}
	}
}

// completed finalizes a command that reported its exit code.
func (o *Orchestrator) completed(req shelltypes.ExecutionRequest, name string, start time.Time, code int, raw string) *shelltypes.ExecutionResult {
	status, sessionStatus, severity := shelltypes.ResultSuccess, shelltypes.SessionCompleted, shelltypes.SeveritySuccess
	if code != 0 {
		status, sessionStatus, severity = shelltypes.ResultError, shelltypes.SessionError, shelltypes.SeverityError
	}

	out := o.shape(raw, o.budget(req), req.PreFilter)
	res := o.result(name, start, status)
	res.Mode = shelltypes.ModeRich
	res.ExitCode = shelltypes.IntPtr(code)
	out.apply(res, req.CaptureOutput)

	o.pool.Touch(name, sessionStatus, req.Command, shelltypes.IntPtr(code))
	if out.normalized != "" {
		o.record(name, req.Command, shelltypes.SourceOutput, severity, out.normalized)
	}
	if code != 0 {
		d := diagnosis.Classify(code, out.normalized, req.Command)
		res.Diagnosis = &d
		o.record(name, req.Command, shelltypes.SourceDiagnosis, shelltypes.SeverityError, d.ErrorType+": "+d.Suggestion)
	}

	logger.ExecutionStep(name, "completed", "exit_code", code, "elapsed", res.Elapsed)
	return res
}

func (o *Orchestrator) timedOut(req shelltypes.ExecutionRequest, name string, start time.Time, raw string) *shelltypes.ExecutionResult {
	out := o.shape(raw, o.budget(req), req.PreFilter)
	res := o.result(name, start, shelltypes.ResultTimeout)
	res.Mode = shelltypes.ModeRich
	out.apply(res, req.CaptureOutput)
	res.Note = fmt.Sprintf("The command did not finish within %s and was left running in session %s. "+
		"Re-run with monitoring enabled or a longer timeout.", req.Timeout, name)

	if out.normalized != "" {
		o.record(name, req.Command, shelltypes.SourceOutput, shelltypes.SeverityWarning, out.normalized)
	}
	logger.ExecutionStep(name, "timed-out", "timeout", req.Timeout)
	return res
}

func (o *Orchestrator) rejected(req shelltypes.ExecutionRequest, start time.Time, note string) *shelltypes.ExecutionResult {
	res := o.result(req.SessionName, start, shelltypes.ResultRejected)
	res.Note = note
	logger.ExecutionStep(req.SessionName, "rejected", "reason", note)
	return res
}

// failure converts an internal error into an error result with a generic
// diagnosis. Partial output, when there is any, is kept.
func (o *Orchestrator) failure(req shelltypes.ExecutionRequest, name string, start time.Time, err error, raw string) *shelltypes.ExecutionResult {
	d := diagnosis.ForExecutionError(err)
	res := o.result(name, start, shelltypes.ResultError)
	res.Diagnosis = &d
	res.Note = err.Error()
	if raw != "" {
		o.shape(raw, o.budget(req), req.PreFilter).apply(res, req.CaptureOutput)
	}

	if name != "" {
		o.pool.Touch(name, shelltypes.SessionError, req.Command, nil)
		o.record(name, req.Command, shelltypes.SourceSystem, shelltypes.SeverityError, err.Error())
	}
	o.log.Error("Execution failed", "session", name, "command", req.Command, "error", err)
	return res
}

func (o *Orchestrator) result(name string, start time.Time, status shelltypes.ResultStatus) *shelltypes.ExecutionResult {
	return &shelltypes.ExecutionResult{
		Status:      status,
		SessionName: name,
		Elapsed:     o.now().Sub(start),
	}
}

func (o *Orchestrator) record(name, command, source string, severity shelltypes.Severity, content string) {
	o.history.Append(shelltypes.OutputRecord{
		SessionName: name,
		Source:      source,
		Command:     command,
		Severity:    severity,
		Content:     content,
	})
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
