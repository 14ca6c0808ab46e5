package testutils

import (
	"context"
	"sort"
	"sync"

	"shellpilot/pkg/shelltypes"
)

// FakeLocator resolves shells from a fixed table.
type FakeLocator struct {
	Shells map[string]string
}

// Resolve implements shelltypes.ShellLocator.
func (l FakeLocator) Resolve(kind string) (string, bool) {
	path, ok := l.Shells[kind]
	return path, ok
}

// Available implements shelltypes.ShellLocator.
func (l FakeLocator) Available() []string {
	kinds := make([]string, 0, len(l.Shells))
	for k := range l.Shells {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// StatusEvent is one call recorded by RecordingStatus.
type StatusEvent struct {
	Call    string // "ask", "update" or "say"
	Kind    shelltypes.StatusKind
	Payload string
}

// RecordingStatus is a StatusChannel that records every call and answers
// approval prompts with a fixed response.
type RecordingStatus struct {
	mu     sync.Mutex
	events []StatusEvent

	Response shelltypes.AskResponse
	AskErr   error
}

// NewRecordingStatus creates a channel that approves every prompt.
func NewRecordingStatus() *RecordingStatus {
	return &RecordingStatus{Response: shelltypes.AskResponse{Approved: true}}
}

// Ask implements shelltypes.StatusChannel.
func (r *RecordingStatus) Ask(ctx context.Context, kind shelltypes.AskKind, payload string) (shelltypes.AskResponse, error) {
	r.record(StatusEvent{Call: "ask", Payload: payload})
	if err := ctx.Err(); err != nil {
		return shelltypes.AskResponse{}, err
	}
	if r.AskErr != nil {
		return shelltypes.AskResponse{}, r.AskErr
	}
	return r.Response, nil
}

// UpdateAsk implements shelltypes.StatusChannel.
func (r *RecordingStatus) UpdateAsk(kind shelltypes.StatusKind, payload string) {
	r.record(StatusEvent{Call: "update", Kind: kind, Payload: payload})
}

// Say implements shelltypes.StatusChannel.
func (r *RecordingStatus) Say(kind shelltypes.StatusKind, message string) {
	r.record(StatusEvent{Call: "say", Kind: kind, Payload: message})
}

func (r *RecordingStatus) record(e StatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns every recorded call in order.
func (r *RecordingStatus) Events() []StatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StatusEvent(nil), r.events...)
}

// Kinds returns the status kinds of update and say calls in order.
func (r *RecordingStatus) Kinds() []shelltypes.StatusKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []shelltypes.StatusKind
	for _, e := range r.events {
		if e.Call != "ask" {
			kinds = append(kinds, e.Kind)
		}
	}
	return kinds
}

// Terminal returns the kinds of say calls, which carry terminal outcomes.
func (r *RecordingStatus) Terminal() []shelltypes.StatusKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []shelltypes.StatusKind
	for _, e := range r.events {
		if e.Call == "say" {
			kinds = append(kinds, e.Kind)
		}
	}
	return kinds
}
