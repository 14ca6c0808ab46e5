package shellintegration

import "strings"

// Token is either a run of plain text or one OSC 133 sequence. Exactly one of
// Text and Sequence is set.
type Token struct {
	Text     string
	Sequence *Sequence
}

// StreamParser splits PTY output into text and OSC 133 tokens in stream order.
// Sequences split across reads are held back until complete; everything else,
// including unrelated escape sequences, passes through as text.
type StreamParser struct {
	pending string
}

// maxPending bounds how much of an unterminated sequence is held back.
const maxPending = 256

// NewStreamParser creates a parser with an empty carry-over buffer.
func NewStreamParser() *StreamParser {
	return &StreamParser{}
}

// Feed parses the next chunk of output.
func (p *StreamParser) Feed(data []byte) []Token {
	content := p.pending + string(data)
	p.pending = ""

	var tokens []Token
	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			tokens = append(tokens, Token{Text: text.String()})
			text.Reset()
		}
	}

	i := 0
	for i < len(content) {
		next := strings.Index(content[i:], ESC)
		if next < 0 {
			text.WriteString(content[i:])
			break
		}
		text.WriteString(content[i : i+next])
		i += next

		rest := content[i:]
		if !strings.HasPrefix(rest, osc133Prefix) {
			if strings.HasPrefix(osc133Prefix, rest) {
				// could still become a sequence once more data arrives
				p.pending = rest
				break
			}
			text.WriteString(ESC)
			i += len(ESC)
			continue
		}

		end, termLen := findTerminator(rest)
		if end < 0 {
			if len(rest) <= maxPending {
				p.pending = rest
				break
			}
			text.WriteString(ESC)
			i += len(ESC)
			continue
		}

		if seq, ok := ParseSequence(rest[:end+termLen]); ok {
			flush()
			tokens = append(tokens, Token{Sequence: &seq})
		}
		i += end + termLen
	}

	flush()
	return tokens
}

// Pending reports whether part of a sequence is being held back.
func (p *StreamParser) Pending() bool {
	return p.pending != ""
}

// Flush returns any held-back partial sequence as plain text and clears it.
func (p *StreamParser) Flush() string {
	rest := p.pending
	p.pending = ""
	return rest
}

// Reset drops any held-back partial sequence.
func (p *StreamParser) Reset() {
	p.pending = ""
}

// StripSequences removes complete OSC 133 sequences from text and leaves all
// other content, including other escape sequences, untouched.
func StripSequences(text string) string {
	p := NewStreamParser()
	var out strings.Builder
	for _, tok := range p.Feed([]byte(text)) {
		out.WriteString(tok.Text)
	}
	out.WriteString(p.Flush())
	return out.String()
}
