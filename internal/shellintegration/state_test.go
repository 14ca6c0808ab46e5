package shellintegration

import (
	"testing"
	"time"
)

func seq(mark Mark, code ...int) Sequence {
	s := Sequence{Mark: mark}
	if len(code) > 0 {
		s.ExitCode = code[0]
		s.HasExitCode = true
	}
	return s
}

func TestTracker_Lifecycle(t *testing.T) {
	tracker := NewTracker()

	if tracker.State() != StateIdle || tracker.Integrated() {
		t.Fatalf("new tracker = %v integrated=%v, want idle and not integrated", tracker.State(), tracker.Integrated())
	}

	tr := tracker.Apply(seq(MarkPromptStart))
	if !tr.Announced {
		t.Error("first sequence should announce integration")
	}
	if tr.Completed {
		t.Error("prompt start must not complete a command")
	}

	tr = tracker.Apply(seq(MarkCommandStart))
	if tr.Announced || tr.OutputStart {
		t.Errorf("command start transition = %+v", tr)
	}
	if !tracker.IsCommandRunning() {
		t.Error("command should be running after B")
	}

	tr = tracker.Apply(seq(MarkOutputStart))
	if !tr.OutputStart || tr.From != StateCommandStart || tr.To != StateOutputStart {
		t.Errorf("output start transition = %+v", tr)
	}

	tr = tracker.Apply(seq(MarkCommandEnd, 2))
	if !tr.Completed || tr.ExitCode != 2 {
		t.Errorf("command end transition = %+v, want completed with 2", tr)
	}
	if tracker.IsCommandRunning() {
		t.Error("command should not be running after D")
	}
	if tracker.LastExitCode() != 2 {
		t.Errorf("LastExitCode() = %d, want 2", tracker.LastExitCode())
	}
}

func TestTracker_EndWithoutStartIsNotACompletion(t *testing.T) {
	tracker := NewTracker()
	tracker.Apply(seq(MarkPromptStart))

	if tr := tracker.Apply(seq(MarkCommandEnd, 0)); tr.Completed {
		t.Error("D without a running command should not complete anything")
	}
}

func TestTracker_EndWithoutExitCode(t *testing.T) {
	tracker := NewTracker()
	tracker.Apply(seq(MarkOutputStart))
	tracker.Apply(seq(MarkCommandEnd, 5))
	tracker.Apply(seq(MarkOutputStart))

	tr := tracker.Apply(seq(MarkCommandEnd))
	if !tr.Completed || tr.ExitCode != 0 {
		t.Errorf("transition = %+v, want completion with exit code 0", tr)
	}
}

func TestTracker_Duration(t *testing.T) {
	tracker := NewTracker()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return now }

	tracker.Apply(seq(MarkCommandStart))
	now = now.Add(1500 * time.Millisecond)
	tracker.Apply(seq(MarkCommandEnd, 0))

	if got := tracker.LastCommandDuration(); got != 1500*time.Millisecond {
		t.Errorf("LastCommandDuration() = %v, want 1.5s", got)
	}
}

func TestTracker_Reset(t *testing.T) {
	tracker := NewTracker()
	tracker.Apply(seq(MarkOutputStart))
	tracker.Apply(seq(MarkCommandEnd, 1))

	tracker.Reset()

	if tracker.State() != StateIdle || tracker.LastExitCode() != 0 || tracker.LastCommandDuration() != 0 {
		t.Error("Reset() should clear command state")
	}
	if !tracker.Integrated() {
		t.Error("Reset() should keep the integration flag")
	}
}
