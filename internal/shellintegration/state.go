package shellintegration

import (
	"sync"
	"time"
)

// Transition describes the effect of one sequence on a Tracker.
type Transition struct {
	From        CommandState
	To          CommandState
	Announced   bool // first sequence ever seen: the shell speaks the protocol
	OutputStart bool // command output begins after this sequence
	Completed   bool // a command finished; ExitCode is valid
	ExitCode    int
}

// Tracker follows the command lifecycle of one terminal from the sequences
// its shell emits. It is safe for concurrent use.
type Tracker struct {
	mutex          sync.RWMutex
	state          CommandState
	integrated     bool
	running        bool
	lastExitCode   int
	commandStarted time.Time
	commandEnded   time.Time
	now            func() time.Time
}

// NewTracker creates a tracker in the idle state.
func NewTracker() *Tracker {
	return &Tracker{state: StateIdle, now: time.Now}
}

// Apply advances the tracker with seq.
func (t *Tracker) Apply(seq Sequence) Transition {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	tr := Transition{From: t.state, To: seq.State()}
	if !t.integrated {
		t.integrated = true
		tr.Announced = true
	}

	switch tr.To {
	case StateCommandStart:
		if !t.running {
			t.running = true
			t.commandStarted = t.now()
		}
	case StateOutputStart:
		if !t.running {
			t.running = true
			t.commandStarted = t.now()
		}
		tr.OutputStart = true
	case StateCommandEnd:
		// A D without a preceding B/C is the shell's first prompt cycle.
		if t.running {
			t.running = false
			t.commandEnded = t.now()
			if seq.HasExitCode {
				t.lastExitCode = seq.ExitCode
			} else {
				t.lastExitCode = 0
			}
			tr.Completed = true
			tr.ExitCode = t.lastExitCode
		}
	}

	t.state = tr.To
	return tr
}

// State returns the current command state.
func (t *Tracker) State() CommandState {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.state
}

// Integrated reports whether any OSC 133 sequence has been seen.
func (t *Tracker) Integrated() bool {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.integrated
}

// IsCommandRunning reports whether a command started and has not ended.
func (t *Tracker) IsCommandRunning() bool {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.running
}

// LastExitCode returns the exit code of the last completed command.
func (t *Tracker) LastExitCode() int {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.lastExitCode
}

// LastCommandDuration returns how long the last completed command ran.
func (t *Tracker) LastCommandDuration() time.Duration {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	if t.commandStarted.IsZero() || t.commandEnded.Before(t.commandStarted) {
		return 0
	}
	return t.commandEnded.Sub(t.commandStarted)
}

// Reset returns the tracker to idle. Whether the shell is integrated is kept.
func (t *Tracker) Reset() {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.state = StateIdle
	t.running = false
	t.lastExitCode = 0
	t.commandStarted = time.Time{}
	t.commandEnded = time.Time{}
}
