package orchestrator

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"shellpilot/internal/stringprocessing"
	"shellpilot/pkg/shelltypes"
)

const (
	msRound = time.Millisecond
	// progressTail bounds the partial output sent with each progress update.
	progressTail = 2000
)

// outputBuffer accumulates raw chunks. It is shared between a run and the
// monitor that takes it over.
type outputBuffer struct {
	mu sync.Mutex
	b  strings.Builder
}

func (o *outputBuffer) append(chunk string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.b.WriteString(chunk)
}

func (o *outputBuffer) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.b.String()
}

// drain moves every chunk left in stream into buf. It returns once stream
// is closed, or immediately when stream is nil.
func drain(stream <-chan string, buf *outputBuffer) {
	if stream == nil {
		return
	}
	for chunk := range stream {
		buf.append(chunk)
	}
}

// drainReady moves the chunks already buffered in stream into buf without
// waiting for more. It returns nil once stream has been closed.
func drainReady(stream <-chan string, buf *outputBuffer) <-chan string {
	for stream != nil {
		select {
		case chunk, ok := <-stream:
			if !ok {
				return nil
			}
			buf.append(chunk)
		default:
			return stream
		}
	}
	return nil
}

// shaped is normalized output cut down to a budget.
type shaped struct {
	normalized string
	stringprocessing.FilterResult
}

func (o *Orchestrator) shape(raw string, budget int, preFilter bool) shaped {
	normalized := stringprocessing.Normalize(raw)
	if preFilter && o.filter != nil {
		return shaped{normalized: normalized, FilterResult: o.filter.Apply(normalized, budget)}
	}
	tr := stringprocessing.Truncate(normalized, budget)
	return shaped{normalized: normalized, FilterResult: stringprocessing.FilterResult{
		Text:         tr.Text,
		Truncated:    tr.Truncated,
		OmittedLines: tr.OmittedLines,
	}}
}

// apply copies the shaped output into res. Without capture only the
// bookkeeping survives.
func (s shaped) apply(res *shelltypes.ExecutionResult, capture bool) {
	if capture {
		res.Output = s.Text
	}
	res.Truncated = s.Truncated
	res.Filtered = s.Filtered
	res.OmittedLines = s.OmittedLines
	res.FilteredLines = s.FilteredLines
}

// progressPayload is the tail of the partial output.
func progressPayload(raw string) string {
	text := stringprocessing.Normalize(raw)
	if len(text) <= progressTail {
		return text
	}
	cut := len(text) - progressTail
	for cut < len(text) && !utf8.RuneStart(text[cut]) {
		cut++
	}
	if i := strings.IndexByte(text[cut:], '\n'); i >= 0 {
		return text[cut+i+1:]
	}
	return text[cut:]
}
