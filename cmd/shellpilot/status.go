package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"shellpilot/pkg/shelltypes"
)

// errNoPrompt is returned when approval is required but nobody can answer.
var errNoPrompt = errors.New("approval required but no prompt is available; rerun with --yes")

// confirmFunc shows prompt and returns the line the user typed.
type confirmFunc func(prompt string) (string, error)

// cliStatus reports engine transitions through a logger and asks for
// approval on the terminal.
type cliStatus struct {
	log         *log.Logger
	confirm     confirmFunc
	autoApprove bool
}

func newCLIStatus(l *log.Logger, confirm confirmFunc, autoApprove bool) *cliStatus {
	return &cliStatus{log: l, confirm: confirm, autoApprove: autoApprove}
}

// Ask implements shelltypes.StatusChannel.
func (s *cliStatus) Ask(ctx context.Context, kind shelltypes.AskKind, payload string) (shelltypes.AskResponse, error) {
	if s.autoApprove {
		s.log.Info("Approved", "command", payload)
		return shelltypes.AskResponse{Approved: true}, nil
	}
	if s.confirm == nil {
		return shelltypes.AskResponse{}, errNoPrompt
	}
	if err := ctx.Err(); err != nil {
		return shelltypes.AskResponse{}, err
	}

	answer, err := s.confirm(fmt.Sprintf("Run %s `%s`? [y/N or feedback] ", kind, payload))
	if err != nil {
		return shelltypes.AskResponse{}, fmt.Errorf("failed to read approval: %w", err)
	}
	return parseApproval(answer), nil
}

// UpdateAsk implements shelltypes.StatusChannel. Progress payloads carry the
// output tail; only its last line is logged.
func (s *cliStatus) UpdateAsk(kind shelltypes.StatusKind, payload string) {
	s.log.Debug("Running", "state", kind, "tail", lastLine(payload))
}

// Say implements shelltypes.StatusChannel.
func (s *cliStatus) Say(kind shelltypes.StatusKind, message string) {
	switch kind {
	case shelltypes.StatusError:
		s.log.Error(message, "state", kind)
	case shelltypes.StatusRejected, shelltypes.StatusTimeoutMonitoring:
		s.log.Warn(message, "state", kind)
	default:
		s.log.Info(message, "state", kind)
	}
}

// parseApproval reads "y"/"yes" as approval. Anything else declines, and text
// other than "n"/"no" is passed on as feedback.
func parseApproval(answer string) shelltypes.AskResponse {
	answer = strings.TrimSpace(answer)
	switch strings.ToLower(answer) {
	case "y", "yes":
		return shelltypes.AskResponse{Approved: true}
	case "", "n", "no":
		return shelltypes.AskResponse{}
	}
	return shelltypes.AskResponse{Feedback: answer}
}

// lineConfirm prompts on w and reads one line from r.
func lineConfirm(r io.Reader, w io.Writer) confirmFunc {
	reader := bufio.NewReader(r)
	return func(prompt string) (string, error) {
		if _, err := io.WriteString(w, prompt); err != nil {
			return "", err
		}
		line, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", err
		}
		return line, nil
	}
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\r\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
