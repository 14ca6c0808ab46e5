package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"shellpilot/pkg/shelltypes"
)

// reporter forwards transitions to a StatusChannel and guarantees exactly one
// terminal Say per request. Updates after the terminal status are dropped.
type reporter struct {
	ch shelltypes.StatusChannel

	mu       sync.Mutex
	finished bool
}

func newReporter(ch shelltypes.StatusChannel) *reporter {
	if ch == nil {
		ch = discardStatus{}
	}
	return &reporter{ch: ch}
}

func (r *reporter) ask(ctx context.Context, payload string) (shelltypes.AskResponse, error) {
	return r.ch.Ask(ctx, shelltypes.AskCommand, payload)
}

func (r *reporter) update(kind shelltypes.StatusKind, payload string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	r.ch.UpdateAsk(kind, payload)
}

// finish reports res as the terminal status. Only the first call has an effect.
func (r *reporter) finish(res *shelltypes.ExecutionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished || res == nil {
		return
	}
	r.finished = true
	r.ch.Say(statusKind(res.Status), summary(res))
}

func statusKind(s shelltypes.ResultStatus) shelltypes.StatusKind {
	switch s {
	case shelltypes.ResultSuccess:
		return shelltypes.StatusSuccess
	case shelltypes.ResultRejected:
		return shelltypes.StatusRejected
	case shelltypes.ResultTimeoutMonitoring:
		return shelltypes.StatusTimeoutMonitoring
	default:
		return shelltypes.StatusError
	}
}

// summary is the one-line message that accompanies the terminal status.
func summary(res *shelltypes.ExecutionResult) string {
	switch res.Status {
	case shelltypes.ResultRejected:
		if res.Note != "" {
			return res.Note
		}
		return "Command rejected"
	case shelltypes.ResultTimeoutMonitoring:
		return fmt.Sprintf("Command still running in session %s after %s; monitoring continues", res.SessionName, res.Elapsed.Round(msRound))
	case shelltypes.ResultTimeout:
		return fmt.Sprintf("Command timed out after %s in session %s", res.Elapsed.Round(msRound), res.SessionName)
	}

	var msg string
	if res.ExitCode != nil {
		msg = fmt.Sprintf("Command exited with code %d in %s", *res.ExitCode, res.Elapsed.Round(msRound))
	} else if res.Status == shelltypes.ResultSuccess {
		msg = "Command sent"
	} else {
		msg = "Command failed"
	}
	if res.Diagnosis != nil {
		msg += ": " + res.Diagnosis.ErrorType
	}
	return msg
}

// discardStatus is used when a caller passes no status channel. Approval
// prompts are answered with a refusal.
type discardStatus struct{}

func (discardStatus) Ask(context.Context, shelltypes.AskKind, string) (shelltypes.AskResponse, error) {
	return shelltypes.AskResponse{Feedback: "no status channel to ask for approval"}, nil
}
func (discardStatus) UpdateAsk(shelltypes.StatusKind, string) {}
func (discardStatus) Say(shelltypes.StatusKind, string)       {}
