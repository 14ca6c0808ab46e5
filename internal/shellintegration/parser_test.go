package shellintegration

import (
	"strconv"
	"strings"
	"testing"
)

// render flattens tokens into a readable form: text as-is, sequences as <X> or <D:n>.
func render(tokens []Token) string {
	var b strings.Builder
	for _, tok := range tokens {
		if tok.Sequence == nil {
			b.WriteString(tok.Text)
			continue
		}
		b.WriteString("<" + string(tok.Sequence.Mark))
		if tok.Sequence.HasExitCode {
			b.WriteString(":" + strconv.Itoa(tok.Sequence.ExitCode))
		}
		b.WriteString(">")
	}
	return b.String()
}

func TestStreamParser_Feed(t *testing.T) {
	tests := []struct {
		name     string
		inputs   []string
		expected string
	}{
		{
			name:     "Plain output",
			inputs:   []string{"hello world\n"},
			expected: "hello world\n",
		},
		{
			name:     "Full command cycle",
			inputs:   []string{"\033]133;A\007$ ls\r\n\033]133;B\007\033]133;C\007a.txt\r\n\033]133;D;0\007"},
			expected: "<A>$ ls\r\n<B><C>a.txt\r\n<D:0>",
		},
		{
			name:     "Sequence split across reads",
			inputs:   []string{"out\033]13", "3;D;", "1\007tail"},
			expected: "out<D:1>tail",
		},
		{
			name:     "Lone escape at chunk end",
			inputs:   []string{"x\033", "]133;C\007y"},
			expected: "x<C>y",
		},
		{
			name:     "Other escape sequences pass through",
			inputs:   []string{"\033[31mred\033[0m\033]133;C\007"},
			expected: "\033[31mred\033[0m<C>",
		},
		{
			name:     "Escape split that is not OSC 133",
			inputs:   []string{"a\033", "[1mb"},
			expected: "a\033[1mb",
		},
		{
			name:     "ST terminator",
			inputs:   []string{"a\033]133;A\033\\b"},
			expected: "a<A>b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewStreamParser()
			var tokens []Token
			for _, input := range tt.inputs {
				tokens = append(tokens, parser.Feed([]byte(input))...)
			}

			if got := render(tokens); got != tt.expected {
				t.Errorf("Feed() = %q, want %q", got, tt.expected)
			}
			if parser.Pending() {
				t.Error("parser still holds a partial sequence")
			}
		})
	}
}

func TestStreamParser_OrderPreserved(t *testing.T) {
	parser := NewStreamParser()
	tokens := parser.Feed([]byte("before\033]133;D;3\007after"))

	if len(tokens) != 3 {
		t.Fatalf("got %d tokens, want 3", len(tokens))
	}
	if tokens[0].Text != "before" || tokens[2].Text != "after" {
		t.Errorf("unexpected text tokens: %q %q", tokens[0].Text, tokens[2].Text)
	}
	if tokens[1].Sequence == nil || tokens[1].Sequence.ExitCode != 3 {
		t.Errorf("middle token = %+v, want D;3", tokens[1])
	}
}

func TestStreamParser_OversizedUnterminated(t *testing.T) {
	parser := NewStreamParser()
	junk := "\033]133;" + strings.Repeat("x", maxPending+10)
	tokens := parser.Feed([]byte(junk))

	if parser.Pending() {
		t.Error("oversized unterminated sequence should not be held back")
	}
	if got := render(tokens); got != junk {
		t.Errorf("Feed() = %q, want input passed through", got)
	}
}

func TestStreamParser_FlushAndReset(t *testing.T) {
	parser := NewStreamParser()
	parser.Feed([]byte("abc\033]133"))
	if !parser.Pending() {
		t.Fatal("expected pending partial sequence")
	}
	if got := parser.Flush(); got != "\033]133" {
		t.Errorf("Flush() = %q", got)
	}

	parser.Feed([]byte("\033]1"))
	parser.Reset()
	if parser.Pending() {
		t.Error("Reset() should drop the partial sequence")
	}
}

func TestStripSequences(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello world"},
		{"\033]133;A\007hello\033]133;C\007 world\033]133;D;0\007", "hello world"},
		{"hello\033[31mred\033[0m\033]133;A\007world", "hello\033[31mred\033[0mworld"},
		{"trailing\033]13", "trailing\033]13"},
	}

	for _, tt := range tests {
		if got := StripSequences(tt.input); got != tt.expected {
			t.Errorf("StripSequences(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
