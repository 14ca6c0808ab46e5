// Package shellintegration implements the rich completion protocol used to
// observe commands in a shell session. Shells announce prompt, command and
// output boundaries plus the exit code with OSC 133 sequences; this package
// parses those sequences, tracks per-terminal command state and decides, with
// a cached bounded handshake, whether a shell speaks the protocol at all.
package shellintegration

import (
	"strconv"
	"strings"
)

// OSC 133 framing
const (
	// ESC = ASCII 27 (0x1B)
	ESC = "\033"
	// BEL = ASCII 7 (0x07), the usual string terminator
	BEL = "\007"
	// OSC = Operating System Command prefix
	OSC = ESC + "]"
	// ST = String Terminator (alternative to BEL)
	ST = ESC + "\\"

	osc133Prefix = OSC + "133;"
)

// Mark is the OSC 133 marker letter.
type Mark byte

// OSC 133 markers
const (
	MarkPromptStart  Mark = 'A'
	MarkCommandStart Mark = 'B'
	MarkOutputStart  Mark = 'C'
	MarkCommandEnd   Mark = 'D'
)

// CommandState is the command lifecycle position of a terminal.
type CommandState int

const (
	StateIdle CommandState = iota
	StatePromptStart
	StateCommandStart
	StateOutputStart
	StateCommandEnd
)

func (s CommandState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StatePromptStart:
		return "PromptStart"
	case StateCommandStart:
		return "CommandStart"
	case StateOutputStart:
		return "OutputStart"
	case StateCommandEnd:
		return "CommandEnd"
	default:
		return "Unknown"
	}
}

// Sequence is one parsed OSC 133 sequence.
type Sequence struct {
	Mark        Mark
	ExitCode    int  // Only meaningful when HasExitCode is set
	HasExitCode bool // D markers may omit the exit code
	Raw         string
}

// State returns the command state a sequence moves a terminal into.
func (s Sequence) State() CommandState {
	switch s.Mark {
	case MarkPromptStart:
		return StatePromptStart
	case MarkCommandStart:
		return StateCommandStart
	case MarkOutputStart:
		return StateOutputStart
	case MarkCommandEnd:
		return StateCommandEnd
	default:
		return StateIdle
	}
}

// ParseSequence parses one complete OSC 133 sequence at the start of text,
// terminated by BEL or ST.
func ParseSequence(text string) (Sequence, bool) {
	if !strings.HasPrefix(text, osc133Prefix) {
		return Sequence{}, false
	}

	end, termLen := findTerminator(text)
	if end < 0 {
		return Sequence{}, false
	}

	body := text[len(osc133Prefix):end]
	parts := strings.Split(body, ";")
	if len(parts[0]) != 1 {
		return Sequence{}, false
	}

	seq := Sequence{
		Mark: Mark(parts[0][0]),
		Raw:  text[:end+termLen],
	}
	switch seq.Mark {
	case MarkPromptStart, MarkCommandStart, MarkOutputStart, MarkCommandEnd:
	default:
		return Sequence{}, false
	}

	if seq.Mark == MarkCommandEnd && len(parts) >= 2 {
		if code, err := strconv.Atoi(parts[1]); err == nil {
			seq.ExitCode = code
			seq.HasExitCode = true
		}
	}

	return seq, true
}

// findTerminator returns the index of the first BEL or ST in text and its length.
func findTerminator(text string) (int, int) {
	bel := strings.Index(text, BEL)
	st := strings.Index(text, ST)
	switch {
	case bel < 0 && st < 0:
		return -1, 0
	case st < 0 || (bel >= 0 && bel < st):
		return bel, len(BEL)
	default:
		return st, len(ST)
	}
}

// FormatSequence renders an OSC 133 sequence terminated by BEL.
func FormatSequence(mark Mark, data ...string) string {
	sequence := osc133Prefix + string(mark)
	if len(data) > 0 {
		sequence += ";" + strings.Join(data, ";")
	}
	return sequence + BEL
}
